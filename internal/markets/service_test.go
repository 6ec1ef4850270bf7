package markets

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/holiman/uint256"
	"github.com/leafsii/dsc-ledger/internal/calc"
	"github.com/leafsii/dsc-ledger/internal/domain"
	"github.com/leafsii/dsc-ledger/internal/engine"
	"github.com/leafsii/dsc-ledger/internal/oracle"
	"github.com/leafsii/dsc-ledger/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func units(n uint64, decimals int) *uint256.Int {
	p, _ := calc.Pow10(decimals)
	return new(uint256.Int).Mul(uint256.NewInt(n), p)
}

type stubReader struct {
	totals   map[string]*uint256.Int
	btcStale bool
	listed   atomic.Int32
}

func (s *stubReader) CollateralAssets() []domain.Asset {
	s.listed.Add(1)
	return []domain.Asset{
		{ID: "WETH", Symbol: "WETH", Decimals: 18, Feed: "ETH/USD"},
		{ID: "WBTC", Symbol: "WBTC", Decimals: 8, Feed: "BTC/USD"},
	}
}

func (s *stubReader) GetUsdValue(_ context.Context, asset string, amount *uint256.Int) (*uint256.Int, error) {
	switch asset {
	case "WETH":
		return new(uint256.Int).Mul(amount, uint256.NewInt(2000)), nil
	case "WBTC":
		if s.btcStale {
			return nil, &oracle.FeedError{Feed: "BTC/USD", Err: oracle.ErrStalePrice}
		}
		return new(uint256.Int).Mul(amount, units(30000, 10)), nil
	}
	return nil, oracle.ErrUnknownAsset
}

func (s *stubReader) TotalCollateral(_ context.Context, asset string) *uint256.Int {
	if t, ok := s.totals[asset]; ok {
		return new(uint256.Int).Set(t)
	}
	return new(uint256.Int)
}

func (s *stubReader) TotalDebt(context.Context) *uint256.Int {
	return units(2500, 18)
}

func (s *stubReader) Params() engine.Params {
	return engine.Params{
		LiquidationThreshold: calc.LiquidationThreshold,
		LiquidationPrecision: calc.LiquidationPrecision,
		LiquidationBonus:     calc.LiquidationBonus,
		Precision:            calc.Precision(),
		MinHealthFactor:      calc.MinHealthFactor(),
	}
}

func (s *stubReader) Issuer() string { return "DSC" }

func TestList(t *testing.T) {
	reader := &stubReader{totals: map[string]*uint256.Int{
		"WETH": units(3, 18),
		"WBTC": units(5, 7),
	}}
	svc := NewService(reader, nil, zap.NewNop().Sugar())

	catalog, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, catalog.Markets, 2)

	weth := catalog.Markets[0]
	assert.Equal(t, "WETH", weth.ID)
	assert.Equal(t, "ETH/USD", weth.Feed)
	assert.Equal(t, "2000", weth.PriceUsd)
	assert.Equal(t, "3", weth.TotalDeposited)
	assert.Equal(t, "6000", weth.TotalValueUsd)
	assert.NotNil(t, weth.UpdatedAt)

	wbtc := catalog.Markets[1]
	assert.Equal(t, uint8(8), wbtc.Decimals)
	assert.Equal(t, "30000", wbtc.PriceUsd)
	assert.Equal(t, "0.5", wbtc.TotalDeposited)
	assert.Equal(t, "15000", wbtc.TotalValueUsd)

	assert.Equal(t, "DSC", catalog.Params.Stablecoin)
	assert.Equal(t, "1.5", catalog.Params.LiquidationThreshold)
	assert.Equal(t, "0.1", catalog.Params.LiquidationBonus)
	assert.Equal(t, "1", catalog.Params.MinHealthFactor)
	assert.Equal(t, "2500", catalog.Params.TotalDebt)
}

func TestListReportsFeedFailurePerMarket(t *testing.T) {
	reader := &stubReader{btcStale: true}
	svc := NewService(reader, nil, zap.NewNop().Sugar())

	catalog, err := svc.List(context.Background())
	require.NoError(t, err)

	assert.Empty(t, catalog.Markets[0].PriceError)
	assert.Empty(t, catalog.Markets[1].PriceUsd)
	assert.Contains(t, catalog.Markets[1].PriceError, "BTC/USD")
	assert.Nil(t, catalog.Markets[1].UpdatedAt)
	assert.Equal(t, "0", catalog.Markets[1].TotalDeposited)
}

func TestListUsesCache(t *testing.T) {
	reader := &stubReader{}
	cache := store.NewMemoryCache(zap.NewNop().Sugar(), nil)
	defer cache.Close()
	svc := NewService(reader, cache, zap.NewNop().Sugar())

	first, err := svc.List(context.Background())
	require.NoError(t, err)
	second, err := svc.List(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(1), reader.listed.Load())
	assert.Equal(t, first.Params, second.Params)
	assert.Len(t, second.Markets, 2)
}

func TestGet(t *testing.T) {
	svc := NewService(&stubReader{}, nil, zap.NewNop().Sugar())

	m, ok := svc.Get(context.Background(), "WBTC")
	require.True(t, ok)
	assert.Equal(t, "BTC/USD", m.Feed)

	_, ok = svc.Get(context.Background(), "DOGE")
	assert.False(t, ok)
}
