package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := New(provider.Meter("test"))
	require.NoError(t, err)
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestRecordOperation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordOperation(ctx, "deposit", "ok", 5*time.Millisecond)
	m.RecordOperation(ctx, "deposit", "ok", 7*time.Millisecond)
	m.RecordOperation(ctx, "mint", "solvency", time.Millisecond)

	got := collect(t, reader)
	ops, ok := got["dsc_engine_operations_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, ops.DataPoints, 2)

	var total int64
	for _, dp := range ops.DataPoints {
		total += dp.Value
	}
	assert.Equal(t, int64(3), total)

	_, ok = got["dsc_engine_operation_duration_seconds"].Data.(metricdata.Histogram[float64])
	assert.True(t, ok)
}

func TestRecordLiquidation(t *testing.T) {
	m, reader := newTestMetrics(t)
	m.RecordLiquidation(context.Background(), "WETH", 100, 0.055)

	got := collect(t, reader)
	liq := got["dsc_liquidations_total"].Data.(metricdata.Sum[int64])
	require.Len(t, liq.DataPoints, 1)
	assert.Equal(t, int64(1), liq.DataPoints[0].Value)

	debt := got["dsc_liquidation_debt_covered"].Data.(metricdata.Sum[float64])
	require.Len(t, debt.DataPoints, 1)
	assert.InDelta(t, 100.0, debt.DataPoints[0].Value, 1e-9)
}

func TestPositionGauges(t *testing.T) {
	m, reader := newTestMetrics(t)
	m.SetPositionsAtRisk(2, 7)

	got := collect(t, reader)
	atRisk := got["dsc_positions_at_risk"].Data.(metricdata.Gauge[int64])
	require.Len(t, atRisk.DataPoints, 1)
	assert.Equal(t, int64(2), atRisk.DataPoints[0].Value)

	debtors := got["dsc_debtors"].Data.(metricdata.Gauge[int64])
	require.Len(t, debtors.DataPoints, 1)
	assert.Equal(t, int64(7), debtors.DataPoints[0].Value)
}
