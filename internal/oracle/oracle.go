// Package oracle adapts a raw price source into validated USD conversions for collateral
// assets.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/holiman/uint256"
	"github.com/leafsii/dsc-ledger/internal/assets"
	"github.com/leafsii/dsc-ledger/internal/calc"
)

var (
	ErrInvalidPrice             = errors.New("invalid price")
	ErrStalePrice               = errors.New("stale price")
	ErrUnsupportedPriceDecimals = errors.New("price feed decimals above 18")
	ErrUnknownAsset             = errors.New("asset has no price feed")
	ErrSourceUnavailable        = errors.New("price source unavailable")
)

// FeedError attributes a rejected quote to its feed.
type FeedError struct {
	Feed string
	Err  error
}

func (e *FeedError) Error() string {
	return "feed " + e.Feed + ": " + e.Err.Error()
}

func (e *FeedError) Unwrap() error {
	return e.Err
}

// Quote is the latest answer of a price feed. Price is signed because upstream feeds are.
type Quote struct {
	Price     *big.Int
	Decimals  uint8
	Stale     bool
	UpdatedAt time.Time
}

// PriceSource returns the latest quote for a feed identifier.
type PriceSource interface {
	LatestPrice(ctx context.Context, feed string) (Quote, error)
}

// Adapter validates quotes and converts between native asset units and 18-decimal USD.
// It holds no state besides its collaborators and never caches a quote.
type Adapter struct {
	source   PriceSource
	registry *assets.Registry
}

func NewAdapter(source PriceSource, registry *assets.Registry) *Adapter {
	return &Adapter{source: source, registry: registry}
}

// Quote fetches and validates the current price of asset.
func (a *Adapter) Quote(ctx context.Context, asset string) (*uint256.Int, uint8, error) {
	info, ok := a.registry.Get(asset)
	if !ok {
		return nil, 0, fmt.Errorf("%w: %s", ErrUnknownAsset, asset)
	}

	q, err := a.source.LatestPrice(ctx, info.Feed)
	if err != nil {
		return nil, 0, &FeedError{Feed: info.Feed, Err: fmt.Errorf("%w: %w", ErrSourceUnavailable, err)}
	}
	if q.Price == nil || q.Price.Sign() <= 0 {
		return nil, 0, &FeedError{Feed: info.Feed, Err: fmt.Errorf("%w: %v", ErrInvalidPrice, q.Price)}
	}
	if q.Stale {
		return nil, 0, &FeedError{Feed: info.Feed, Err: fmt.Errorf("%w: last updated %s", ErrStalePrice, q.UpdatedAt.Format(time.RFC3339))}
	}
	if q.Decimals > calc.PrecisionDecimals {
		return nil, 0, &FeedError{Feed: info.Feed, Err: fmt.Errorf("%w: %d", ErrUnsupportedPriceDecimals, q.Decimals)}
	}

	price, overflow := uint256.FromBig(q.Price)
	if overflow {
		return nil, 0, &FeedError{Feed: info.Feed, Err: fmt.Errorf("%w: exceeds 256 bits", ErrInvalidPrice)}
	}
	return price, q.Decimals, nil
}

// GetUsdValue converts amount native units of asset into 18-decimal USD.
func (a *Adapter) GetUsdValue(ctx context.Context, asset string, amount *uint256.Int) (*uint256.Int, error) {
	price, pd, err := a.Quote(ctx, asset)
	if err != nil {
		return nil, err
	}
	info, _ := a.registry.Get(asset)
	usd, err := calc.UsdValue(price, pd, amount, info.Decimals)
	if err != nil {
		return nil, fmt.Errorf("usd value of %s %s: %w", amount.Dec(), asset, err)
	}
	return usd, nil
}

// GetAssetAmountForUsd converts an 18-decimal USD amount into native units of asset,
// rounding down.
func (a *Adapter) GetAssetAmountForUsd(ctx context.Context, asset string, usd *uint256.Int) (*uint256.Int, error) {
	price, pd, err := a.Quote(ctx, asset)
	if err != nil {
		return nil, err
	}
	info, _ := a.registry.Get(asset)
	amount, err := calc.AssetAmountForUsd(price, pd, usd, info.Decimals)
	if err != nil {
		return nil, fmt.Errorf("%s amount for %s usd: %w", asset, usd.Dec(), err)
	}
	return amount, nil
}
