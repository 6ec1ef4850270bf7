package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/holiman/uint256"
	"github.com/leafsii/dsc-ledger/internal/calc"
	"github.com/leafsii/dsc-ledger/internal/domain"
	"github.com/leafsii/dsc-ledger/internal/engine"
	"github.com/leafsii/dsc-ledger/internal/metrics"
	"github.com/leafsii/dsc-ledger/internal/oracle"
	"github.com/leafsii/dsc-ledger/internal/store"
	"go.uber.org/zap"
)

// PositionReader is the part of the engine the monitor reads.
type PositionReader interface {
	Debtors(ctx context.Context) []domain.Address
	AccountInformation(ctx context.Context, user domain.Address) (debt, collateralUsd *uint256.Int, err error)
}

// Alert is published on store.ChannelAlerts for every liquidatable position.
type Alert struct {
	User          domain.Address `json:"user"`
	Debt          string         `json:"debt"`
	CollateralUsd string         `json:"collateral_usd"`
	HealthFactor  string         `json:"health_factor"`
	At            time.Time      `json:"at"`
}

// Scan is the outcome of one pass over all debtors.
type Scan struct {
	Debtors  int
	AtRisk   []Alert
	Failures int
}

// HealthMonitor periodically values every debtor and reports the positions below the
// minimum health factor.
type HealthMonitor struct {
	positions PositionReader
	cache     *store.Cache
	metrics   *metrics.Metrics
	logger    *zap.SugaredLogger
	interval  time.Duration
	now       func() time.Time
}

func NewHealthMonitor(positions PositionReader, cache *store.Cache, metrics *metrics.Metrics, logger *zap.SugaredLogger, interval time.Duration) *HealthMonitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &HealthMonitor{
		positions: positions,
		cache:     cache,
		metrics:   metrics,
		logger:    logger,
		interval:  interval,
		now:       time.Now,
	}
}

func (m *HealthMonitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.ScanOnce(ctx)
		}
	}
}

// ScanOnce evaluates all debtors once, publishes alerts and updates the gauges.
func (m *HealthMonitor) ScanOnce(ctx context.Context) Scan {
	debtors := m.positions.Debtors(ctx)
	scan := Scan{Debtors: len(debtors)}
	minHF := calc.MinHealthFactor()

	for _, user := range debtors {
		debt, collateralUsd, err := m.positions.AccountInformation(ctx, user)
		if err != nil {
			scan.Failures++
			m.recordFailure(ctx, user, err)
			continue
		}
		hf, err := calc.HealthFactor(collateralUsd, debt)
		if err != nil {
			scan.Failures++
			m.logger.Warnw("Failed to compute health factor", "user", user, "error", err)
			continue
		}
		if !hf.Lt(minHF) {
			continue
		}

		alert := Alert{
			User:          user,
			Debt:          debt.Dec(),
			CollateralUsd: collateralUsd.Dec(),
			HealthFactor:  calc.FormatHealthFactor(hf),
			At:            m.now().UTC(),
		}
		scan.AtRisk = append(scan.AtRisk, alert)

		m.logger.Warnw("Position below minimum health factor",
			"user", user,
			"health_factor", alert.HealthFactor,
			"debt", alert.Debt,
			"collateral_usd", alert.CollateralUsd,
		)
		if m.cache != nil {
			if err := m.cache.Publish(ctx, store.ChannelAlerts, alert); err != nil {
				m.logger.Warnw("Failed to publish alert", "user", user, "error", err)
			}
		}
	}

	if m.metrics != nil {
		m.metrics.SetPositionsAtRisk(len(scan.AtRisk), scan.Debtors)
	}
	return scan
}

func (m *HealthMonitor) recordFailure(ctx context.Context, user domain.Address, err error) {
	m.logger.Warnw("Failed to value position", "user", user, "error", err)
	if m.metrics == nil || engine.KindOf(err) != engine.KindOracle {
		return
	}
	reason := "invalid"
	if errors.Is(err, oracle.ErrStalePrice) {
		reason = "stale"
	}
	m.metrics.RecordOracleFailure(ctx, feedOf(err), reason)
}

// feedOf recovers the feed from an oracle error when it carries one.
func feedOf(err error) string {
	var fe *oracle.FeedError
	if errors.As(err, &fe) {
		return fe.Feed
	}
	return "unknown"
}
