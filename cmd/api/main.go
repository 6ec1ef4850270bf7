package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/leafsii/dsc-ledger/internal/accounts"
	"github.com/leafsii/dsc-ledger/internal/api"
	"github.com/leafsii/dsc-ledger/internal/assets"
	"github.com/leafsii/dsc-ledger/internal/broker"
	"github.com/leafsii/dsc-ledger/internal/config"
	"github.com/leafsii/dsc-ledger/internal/domain"
	"github.com/leafsii/dsc-ledger/internal/engine"
	"github.com/leafsii/dsc-ledger/internal/jobs"
	"github.com/leafsii/dsc-ledger/internal/log"
	"github.com/leafsii/dsc-ledger/internal/markets"
	"github.com/leafsii/dsc-ledger/internal/metrics"
	"github.com/leafsii/dsc-ledger/internal/oracle"
	"github.com/leafsii/dsc-ledger/internal/prices"
	"github.com/leafsii/dsc-ledger/internal/prices/binance"
	"github.com/leafsii/dsc-ledger/internal/prices/mock"
	"github.com/leafsii/dsc-ledger/internal/repository"
	"github.com/leafsii/dsc-ledger/internal/store"
	"github.com/leafsii/dsc-ledger/internal/token"
	"github.com/leafsii/dsc-ledger/internal/ws"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger, err := log.NewSugar(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Infow("Starting DSC ledger API server",
		"env", cfg.Env,
		"addr", cfg.HTTPAddr,
		"assets", len(cfg.Assets),
		"assets_file", cfg.AssetsPath,
		"price_provider", cfg.Prices.Provider,
	)

	// Setup metrics
	metricsObj, metricsHandler, err := metrics.Setup("dsc-ledger")
	if err != nil {
		logger.Fatalw("Failed to setup metrics", "error", err)
	}

	startCtx, startCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer startCancel()

	// Cache falls back to memory when Redis is unreachable
	cache, err := store.NewCache(cfg.Cache.RedisAddr, logger, metricsObj)
	if err != nil {
		logger.Fatalw("Failed to setup cache", "error", err)
	}
	defer cache.Close()
	logger.Infow("Cache ready", "in_memory", cache.IsInMemoryMode())

	// Event journal storage
	var events repository.EventStore
	if cfg.Database.PostgresDSN != "" {
		pg, err := repository.OpenPostgres(startCtx, cfg.Database.PostgresDSN, logger)
		if err != nil {
			logger.Fatalw("Failed to open event store", "error", err)
		}
		defer pg.Close()
		events = pg
		logger.Infow("Event store: postgres")
	} else {
		events = repository.NewKVStore(cache.KV(), 0)
		logger.Infow("Event store: key-value", "in_memory", cache.IsInMemoryMode())
	}

	// Outbound broker
	var publisher jobs.EventPublisher
	if cfg.Broker.NATSURL != "" {
		p, err := broker.Connect(startCtx, broker.Config{
			URL:           cfg.Broker.NATSURL,
			Stream:        cfg.Broker.Stream,
			SubjectPrefix: cfg.Broker.SubjectPrefix,
		}, logger)
		if err != nil {
			logger.Fatalw("Failed to connect to NATS", "error", err)
		}
		defer p.Close()
		publisher = p
	}

	journalCfg := jobs.DefaultJournalConfig()
	journalCfg.Buffer = cfg.Jobs.JournalBuffer
	journal := jobs.NewJournal(events, cache, publisher, metricsObj, logger, journalCfg)

	// Ledger
	registry, err := assets.NewRegistry(config.DomainAssets(cfg.Assets))
	if err != nil {
		logger.Fatalw("Invalid asset table", "error", err)
	}

	account := domain.Address(cfg.Engine.Account)
	tokens := make(map[string]*token.Token, registry.Len())
	for _, a := range registry.All() {
		tokens[a.ID] = token.NewToken(a.Symbol, a.Decimals)
	}
	vault := token.NewVault(account, tokens)
	stablecoin := token.NewStablecoin(cfg.Engine.IssuerID, account)

	priceSource, priceFeed, err := setupPrices(cfg, registry, cache, logger)
	if err != nil {
		logger.Fatalw("Failed to setup prices", "error", err)
	}

	eng, err := engine.New(engine.Config{
		Assets:    registry,
		Prices:    priceSource,
		Custodian: vault,
		Issuer:    stablecoin,
		IssuerID:  cfg.Engine.IssuerID,
	}, engine.Options{
		Logger:                   logger,
		Events:                   journal,
		Metrics:                  metricsObj,
		RequireHealthImprovement: cfg.Engine.RequireHealthImprovement,
	})
	if err != nil {
		logger.Fatalw("Failed to create engine", "error", err)
	}

	// Setup services
	accountSvc := accounts.NewService(eng, cache, logger)
	marketsSvc := markets.NewService(eng, cache, logger)
	monitor := jobs.NewHealthMonitor(eng, cache, metricsObj, logger, cfg.Jobs.MonitorInterval)

	var faucet api.Faucet
	if cfg.IsDev() {
		faucet = vault
		logger.Warnw("Dev faucet enabled")
	}

	hub := ws.NewHub(cache, logger, metricsObj, feedsOf(registry), cfg.Security.CORSAllowedOrigins)

	// Setup API handler and middleware
	handler := api.NewHandler(eng, accountSvc, marketsSvc, events, cache, faucet, hub, logger, metricsObj)
	middleware := api.NewMiddleware(logger, metricsObj)
	router := handler.Routes(middleware, metricsHandler, cfg.Security.CORSAllowedOrigins, cfg.Security.RateLimitRPM)

	logger.Infow("CORS configured", "allowed_origins", cfg.Security.CORSAllowedOrigins)

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // SSE streams stay open; handlers carry their own timeout
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The journal outlives the HTTP server so events of in-flight requests are still
	// written; it drains its buffer when journalCtx ends.
	journalCtx, stopJournal := context.WithCancel(context.Background())
	defer stopJournal()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return journal.Run(journalCtx) })
	g.Go(func() error { return monitor.Run(gctx) })
	g.Go(func() error { return hub.Run(gctx) })
	if priceFeed != nil {
		g.Go(func() error {
			logger.Infow("Starting price feed", "provider", cfg.Prices.Provider, "retryInterval", cfg.Prices.RetryInterval)
			return priceFeed.Run(gctx)
		})
	}
	g.Go(func() error {
		logger.Infow("API server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Infow("Shutting down")

		// Give outstanding requests 30 seconds to complete
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Errorw("Graceful shutdown failed", "error", err)
			server.Close()
		}
		stopJournal()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Errorw("Server stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Infow("Server stopped")
}

// setupPrices returns the engine's price source and, for live providers, the job that
// keeps it fed.
func setupPrices(cfg *config.Config, registry *assets.Registry, cache *store.Cache, logger *zap.SugaredLogger) (oracle.PriceSource, *jobs.PriceFeed, error) {
	if cfg.Prices.Provider == config.ProviderStatic {
		static := prices.NewStatic()
		for _, entry := range cfg.Assets {
			price, _, err := entry.Price()
			if err != nil {
				return nil, nil, err
			}
			static.Set(entry.Feed, price.Shift(prices.FeedDecimals).BigInt(), prices.FeedDecimals)
		}
		return static, nil, nil
	}

	feeds := feedsOf(registry)
	symbols := prices.NewRegistryForFeeds(feeds)
	feed := prices.NewFeed(cfg.Oracle.MaxAge)

	// Initial prices seed the mock walk and let the engine quote before the first tick.
	base := make(map[string]float64)
	for _, entry := range cfg.Assets {
		price, ok, err := entry.Price()
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			continue
		}
		if err := feed.SetUSD(entry.Feed, price.String()); err != nil {
			return nil, nil, err
		}
		symbol, err := symbols.ProviderSymbol(entry.Feed)
		if err != nil {
			return nil, nil, err
		}
		base[symbol] = price.InexactFloat64()
	}
	generator := mock.NewGenerator(logger, base, cfg.Prices.MockVolatility)

	var primary, fallback prices.Provider = generator, nil
	if cfg.Prices.Provider == config.ProviderBinance {
		primary, fallback = binance.NewProvider(logger), generator
	}

	job := jobs.NewPriceFeed(primary, fallback, symbols, feed, cache, logger, jobs.PriceFeedConfig{
		RetryInterval: cfg.Prices.RetryInterval,
	})
	return feed, job, nil
}

func feedsOf(registry *assets.Registry) []string {
	feeds := make([]string, 0, registry.Len())
	for _, a := range registry.All() {
		feeds = append(feeds, a.Feed)
	}
	return feeds
}
