package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"throttle/internal/admission"
	"throttle/internal/ratelimit"
)

// useManualReader installs a meter provider backed by a manual reader for the
// duration of the test.
func useManualReader(t *testing.T) *sdkmetric.ManualReader {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	prev := otel.GetMeterProvider()
	otel.SetMeterProvider(mp)
	t.Cleanup(func() {
		otel.SetMeterProvider(prev)
		_ = mp.Shutdown(context.Background())
	})
	return reader
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

func decisionCounts(t *testing.T, m metricdata.Metrics) map[string]int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "decisions should be an int64 sum")

	counts := make(map[string]int64)
	for _, dp := range sum.DataPoints {
		v, _ := dp.Attributes.Value(attribute.Key("reason"))
		counts[v.AsString()] = dp.Value
	}
	return counts
}

func newController(t *testing.T, cfg admission.Config) *admission.Controller {
	t.Helper()
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c, err := admission.New(cfg, admission.WithClock(func() time.Time { return start }))
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestInstrumentedAdmitter_CountsDecisions(t *testing.T) {
	reader := useManualReader(t)
	c := newController(t, admission.DefaultConfig())

	a, err := NewInstrumentedAdmitter(ratelimit.Direct(c), c)
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		a.Admit(ctx, "10.0.0.1")
	}
	_, err = a.AdmitValue(ctx, 42)
	require.ErrorIs(t, err, admission.ErrInvalidInput)

	metrics := collect(t, reader)

	counts := decisionCounts(t, metrics["admission.decisions"])
	assert.Equal(t, int64(3), counts["allowed"])
	assert.Equal(t, int64(1), counts["rate_limit_exceeded"])
	assert.Equal(t, int64(1), counts["still_blocked"])
	assert.Equal(t, int64(1), counts["invalid_input"])

	hist, ok := metrics["admission.decision.duration"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	var total uint64
	for _, dp := range hist.DataPoints {
		total += dp.Count
	}
	assert.Equal(t, uint64(6), total)
}

func TestInstrumentedAdmitter_TableGauges(t *testing.T) {
	reader := useManualReader(t)
	c := newController(t, admission.DefaultConfig())

	a, err := NewInstrumentedAdmitter(ratelimit.Direct(c), c)
	require.NoError(t, err)

	ctx := context.Background()
	a.Admit(ctx, "a")
	for i := 0; i < 4; i++ {
		a.Admit(ctx, "b")
	}

	metrics := collect(t, reader)

	size, ok := metrics["admission.table.size"].Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, size.DataPoints, 1)
	assert.Equal(t, int64(2), size.DataPoints[0].Value)

	blocked, ok := metrics["admission.table.blocked"].Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, blocked.DataPoints, 1)
	assert.Equal(t, int64(1), blocked.DataPoints[0].Value)
}

func TestInstrumentedAdmitter_PassesThroughDecision(t *testing.T) {
	useManualReader(t)
	c := newController(t, admission.DefaultConfig())

	a, err := NewInstrumentedAdmitter(ratelimit.Direct(c), nil)
	require.NoError(t, err)

	d, err := a.AdmitValue(context.Background(), "client-1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, "client-1", d.Identifier)
	assert.Equal(t, 1, d.Record.RequestCount)

	_, ok := c.Lookup("client-1")
	assert.True(t, ok)
}
