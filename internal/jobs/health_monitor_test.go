package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/leafsii/dsc-ledger/internal/domain"
	"github.com/leafsii/dsc-ledger/internal/oracle"
	"github.com/leafsii/dsc-ledger/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type position struct {
	debt, collateralUsd *uint256.Int
	err                 error
}

type stubPositions map[domain.Address]position

func (s stubPositions) Debtors(context.Context) []domain.Address {
	out := make([]domain.Address, 0, len(s))
	for _, user := range []domain.Address{"alice", "bob", "carol"} {
		if _, ok := s[user]; ok {
			out = append(out, user)
		}
	}
	return out
}

func (s stubPositions) AccountInformation(_ context.Context, user domain.Address) (*uint256.Int, *uint256.Int, error) {
	p := s[user]
	if p.err != nil {
		return nil, nil, p.err
	}
	return p.debt, p.collateralUsd, nil
}

func usd(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1e18))
}

func TestHealthMonitorScan(t *testing.T) {
	logger := zap.NewNop().Sugar()
	cache := store.NewMemoryCache(logger, nil)
	defer cache.Close()

	staleErr := fmt.Errorf("usd value: %w", &oracle.FeedError{Feed: "ETH/USD", Err: oracle.ErrStalePrice})
	positions := stubPositions{
		"alice": {debt: usd(100), collateralUsd: usd(120)}, // hf 0.8
		"bob":   {debt: usd(100), collateralUsd: usd(300)}, // hf 2.0
		"carol": {err: staleErr},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub := cache.Subscribe(ctx, store.ChannelAlerts)
	defer sub.Close()

	m := NewHealthMonitor(positions, cache, nil, logger, time.Minute)
	m.now = func() time.Time { return time.Unix(1700000000, 0) }

	scan := m.ScanOnce(ctx)
	assert.Equal(t, 3, scan.Debtors)
	assert.Equal(t, 1, scan.Failures)
	require.Len(t, scan.AtRisk, 1)

	alert := scan.AtRisk[0]
	assert.Equal(t, domain.Address("alice"), alert.User)
	assert.Equal(t, "0.8", alert.HealthFactor)
	assert.Equal(t, usd(100).Dec(), alert.Debt)

	select {
	case msg := <-sub.Channel():
		var got Alert
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, alert.User, got.User)
		assert.Equal(t, "0.8", got.HealthFactor)
	case <-time.After(time.Second):
		t.Fatal("alert was not published")
	}

	assert.Equal(t, "ETH/USD", feedOf(staleErr))
	assert.Equal(t, "unknown", feedOf(fmt.Errorf("other")))
}

func TestHealthMonitorNoDebtors(t *testing.T) {
	m := NewHealthMonitor(stubPositions{}, nil, nil, zap.NewNop().Sugar(), 0)
	scan := m.ScanOnce(context.Background())
	assert.Zero(t, scan.Debtors)
	assert.Empty(t, scan.AtRisk)
	assert.Equal(t, 15*time.Second, m.interval)
}
