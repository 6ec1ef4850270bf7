// Package markets exposes the catalog of collateral assets with live prices.
package markets

import (
	"context"
	"errors"
	"time"

	"github.com/holiman/uint256"
	"github.com/leafsii/dsc-ledger/internal/calc"
	"github.com/leafsii/dsc-ledger/internal/domain"
	"github.com/leafsii/dsc-ledger/internal/engine"
	"github.com/leafsii/dsc-ledger/internal/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Reader is the part of the engine the catalog reads.
type Reader interface {
	CollateralAssets() []domain.Asset
	GetUsdValue(ctx context.Context, asset string, amount *uint256.Int) (*uint256.Int, error)
	TotalCollateral(ctx context.Context, asset string) *uint256.Int
	TotalDebt(ctx context.Context) *uint256.Int
	Params() engine.Params
	Issuer() string
}

type Service struct {
	reader Reader
	cache  *store.Cache
	logger *zap.SugaredLogger
	now    func() time.Time
}

// NewService creates the catalog. cache may be nil.
func NewService(reader Reader, cache *store.Cache, logger *zap.SugaredLogger) *Service {
	return &Service{reader: reader, cache: cache, logger: logger, now: time.Now}
}

// List returns every admitted asset in admission order. A failing price feed is
// reported on its market instead of failing the catalog.
func (s *Service) List(ctx context.Context) (*Catalog, error) {
	if s.cache != nil {
		var cached Catalog
		if err := s.cache.GetMarkets(ctx, &cached); err == nil {
			return &cached, nil
		} else if !errors.Is(err, store.ErrCacheMiss) {
			s.logger.Warnw("Markets cache read failed", "error", err)
		}
	}

	assets := s.reader.CollateralAssets()
	catalog := &Catalog{
		Markets: make([]Market, 0, len(assets)),
		Params:  s.params(ctx),
	}
	now := s.now().UTC()
	for _, a := range assets {
		catalog.Markets = append(catalog.Markets, s.market(ctx, a, now))
	}

	if s.cache != nil {
		if err := s.cache.SetMarkets(ctx, catalog); err != nil {
			s.logger.Warnw("Markets cache write failed", "error", err)
		}
	}
	return catalog, nil
}

// Get returns the market of one asset.
func (s *Service) Get(ctx context.Context, id string) (Market, bool) {
	for _, a := range s.reader.CollateralAssets() {
		if a.ID == id {
			return s.market(ctx, a, s.now().UTC()), true
		}
	}
	return Market{}, false
}

func (s *Service) market(ctx context.Context, a domain.Asset, now time.Time) Market {
	total := s.reader.TotalCollateral(ctx, a.ID)
	m := Market{
		ID:             a.ID,
		Symbol:         a.Symbol,
		Decimals:       a.Decimals,
		Feed:           a.Feed,
		TotalDeposited: calc.ToDecimal(total, a.Decimals).String(),
	}

	one, err := calc.Pow10(int(a.Decimals))
	if err != nil {
		m.PriceError = err.Error()
		return m
	}
	price, err := s.reader.GetUsdValue(ctx, a.ID, one)
	if err != nil {
		m.PriceError = err.Error()
		return m
	}
	m.PriceUsd = calc.ToDecimal(price, calc.PrecisionDecimals).String()
	m.UpdatedAt = &now

	if value, err := s.reader.GetUsdValue(ctx, a.ID, total); err == nil {
		m.TotalValueUsd = calc.ToDecimal(value, calc.PrecisionDecimals).String()
	}
	return m
}

func (s *Service) params(ctx context.Context) RiskParams {
	p := s.reader.Params()
	precision := decimal.NewFromInt(int64(p.LiquidationPrecision))
	threshold := decimal.NewFromInt(int64(p.LiquidationThreshold))
	return RiskParams{
		Stablecoin:           s.reader.Issuer(),
		LiquidationThreshold: threshold.Div(precision).String(),
		LiquidationBonus:     decimal.NewFromInt(int64(p.LiquidationBonus)).Div(precision).String(),
		MinHealthFactor:      calc.ToDecimal(p.MinHealthFactor, calc.PrecisionDecimals).String(),
		TotalDebt:            calc.ToDecimal(s.reader.TotalDebt(ctx), calc.PrecisionDecimals).String(),
	}
}
