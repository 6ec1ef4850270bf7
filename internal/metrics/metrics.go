package metrics

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

type Metrics struct {
	HTTPRequests      metric.Int64Counter
	HTTPDuration      metric.Float64Histogram
	CacheHits         metric.Int64Counter
	CacheMisses       metric.Int64Counter
	ActiveConnections metric.Int64UpDownCounter

	EngineOperations metric.Int64Counter
	EngineDuration   metric.Float64Histogram
	Liquidations     metric.Int64Counter
	DebtCovered      metric.Float64Counter
	CollateralSeized metric.Float64Counter
	OracleFailures   metric.Int64Counter
	JournalDropped   metric.Int64Counter
	AtRiskPositions  metric.Int64ObservableGauge
	TrackedDebtors   metric.Int64ObservableGauge

	atRisk  atomic.Int64
	debtors atomic.Int64
}

// Setup installs a Prometheus-backed meter provider and returns the instruments with the
// scrape handler.
func Setup(serviceName string) (*Metrics, http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	m, err := New(provider.Meter(serviceName))
	if err != nil {
		return nil, nil, err
	}
	return m, promhttp.Handler(), nil
}

// New creates the instruments on meter.
func New(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.HTTPRequests, err = meter.Int64Counter(
		"dsc_http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	); err != nil {
		return nil, err
	}

	if m.HTTPDuration, err = meter.Float64Histogram(
		"dsc_http_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
	); err != nil {
		return nil, err
	}

	if m.CacheHits, err = meter.Int64Counter(
		"dsc_cache_hits_total",
		metric.WithDescription("Total number of cache hits"),
	); err != nil {
		return nil, err
	}

	if m.CacheMisses, err = meter.Int64Counter(
		"dsc_cache_misses_total",
		metric.WithDescription("Total number of cache misses"),
	); err != nil {
		return nil, err
	}

	if m.ActiveConnections, err = meter.Int64UpDownCounter(
		"dsc_stream_connections",
		metric.WithDescription("Number of open event stream connections"),
	); err != nil {
		return nil, err
	}

	if m.EngineOperations, err = meter.Int64Counter(
		"dsc_engine_operations_total",
		metric.WithDescription("Engine operations by name and result"),
	); err != nil {
		return nil, err
	}

	if m.EngineDuration, err = meter.Float64Histogram(
		"dsc_engine_operation_duration_seconds",
		metric.WithDescription("Engine operation latency including collaborator calls"),
	); err != nil {
		return nil, err
	}

	if m.Liquidations, err = meter.Int64Counter(
		"dsc_liquidations_total",
		metric.WithDescription("Completed liquidations by collateral asset"),
	); err != nil {
		return nil, err
	}

	if m.DebtCovered, err = meter.Float64Counter(
		"dsc_liquidation_debt_covered",
		metric.WithDescription("Stablecoin debt repaid through liquidations"),
	); err != nil {
		return nil, err
	}

	if m.CollateralSeized, err = meter.Float64Counter(
		"dsc_liquidation_collateral_seized",
		metric.WithDescription("Collateral units transferred to liquidators"),
	); err != nil {
		return nil, err
	}

	if m.OracleFailures, err = meter.Int64Counter(
		"dsc_oracle_failures_total",
		metric.WithDescription("Price reads rejected as invalid or stale"),
	); err != nil {
		return nil, err
	}

	if m.JournalDropped, err = meter.Int64Counter(
		"dsc_journal_dropped_total",
		metric.WithDescription("Events dropped because the journal buffer was full"),
	); err != nil {
		return nil, err
	}

	if m.AtRiskPositions, err = meter.Int64ObservableGauge(
		"dsc_positions_at_risk",
		metric.WithDescription("Positions currently below the minimum health factor"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(m.atRisk.Load())
			return nil
		}),
	); err != nil {
		return nil, err
	}

	if m.TrackedDebtors, err = meter.Int64ObservableGauge(
		"dsc_debtors",
		metric.WithDescription("Accounts carrying non-zero debt"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(m.debtors.Load())
			return nil
		}),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, status int, duration time.Duration) {
	labels := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.Int("status", status),
	)

	m.HTTPRequests.Add(ctx, 1, labels)
	m.HTTPDuration.Record(ctx, duration.Seconds(), labels)
}

func (m *Metrics) RecordCacheHit(ctx context.Context, key string) {
	m.CacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("key", key)))
}

func (m *Metrics) RecordCacheMiss(ctx context.Context, key string) {
	m.CacheMisses.Add(ctx, 1, metric.WithAttributes(attribute.String("key", key)))
}

func (m *Metrics) IncrementConnections(ctx context.Context) {
	m.ActiveConnections.Add(ctx, 1)
}

func (m *Metrics) DecrementConnections(ctx context.Context) {
	m.ActiveConnections.Add(ctx, -1)
}

// RecordOperation satisfies engine.Recorder.
func (m *Metrics) RecordOperation(ctx context.Context, op, result string, d time.Duration) {
	labels := metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("result", result),
	)
	m.EngineOperations.Add(ctx, 1, labels)
	m.EngineDuration.Record(ctx, d.Seconds(), labels)
}

// RecordLiquidation satisfies engine.Recorder.
func (m *Metrics) RecordLiquidation(ctx context.Context, asset string, debtCovered, collateralSeized float64) {
	labels := metric.WithAttributes(attribute.String("asset", asset))
	m.Liquidations.Add(ctx, 1, labels)
	m.DebtCovered.Add(ctx, debtCovered, labels)
	m.CollateralSeized.Add(ctx, collateralSeized, labels)
}

func (m *Metrics) RecordOracleFailure(ctx context.Context, feed, reason string) {
	m.OracleFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("feed", feed),
		attribute.String("reason", reason),
	))
}

func (m *Metrics) RecordJournalDrop(ctx context.Context) {
	m.JournalDropped.Add(ctx, 1)
}

// SetPositionsAtRisk updates the values reported by the position gauges on the next scrape.
func (m *Metrics) SetPositionsAtRisk(atRisk, debtors int) {
	m.atRisk.Store(int64(atRisk))
	m.debtors.Store(int64(debtors))
}
