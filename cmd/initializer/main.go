package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/leafsii/dsc-ledger/internal/config"
	"github.com/leafsii/dsc-ledger/internal/log"
	"github.com/leafsii/dsc-ledger/internal/prices"
	"github.com/leafsii/dsc-ledger/internal/prices/binance"
)

func main() {
	out := flag.String("out", "assets.json", "path of the assets file to write")
	force := flag.Bool("force", false, "overwrite an existing assets file")
	live := flag.Bool("live", false, "seed initial prices from Binance instead of the built-in values")
	flag.Parse()

	if _, err := os.Stat(*out); err == nil && !*force {
		fmt.Fprintf(os.Stderr, "%s already exists; pass -force to overwrite\n", *out)
		os.Exit(1)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		panic(err)
	}

	assets := config.DefaultAssets()

	if *live {
		logger, err := log.NewSugar("dev")
		if err != nil {
			panic(err)
		}
		defer logger.Sync()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		provider := binance.NewProvider(logger)
		for i, a := range assets {
			tick, err := provider.LatestPrice(ctx, prices.DefaultSymbol(a.Feed))
			if err != nil {
				fmt.Printf("Warning: failed to fetch live %s price, keeping $%s: %v\n", a.Feed, a.InitialPrice, err)
				continue
			}
			assets[i].InitialPrice = tick.Price.String()
			fmt.Printf("Using live %s price: $%s\n", a.Feed, assets[i].InitialPrice)
		}
	}

	if err := config.WriteAssetsFile(*out, config.AssetsFile{Assets: assets}); err != nil {
		panic(err)
	}

	for _, a := range assets {
		fmt.Printf("%-6s decimals=%-2d feed=%-8s price=%s\n", a.ID, a.Decimals, a.Feed, a.InitialPrice)
	}
	fmt.Println("wrote", *out)
}
