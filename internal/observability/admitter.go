package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"throttle/internal/admission"
	"throttle/internal/ratelimit"
)

const instrumentationName = "throttle/admission"

// StatsSource reports the current shape of the admission table.
type StatsSource interface {
	Stats() admission.Stats
}

// InstrumentedAdmitter wraps a ratelimit.Admitter with OpenTelemetry tracing
// and metrics. Every decision is counted by reason and timed; table size and
// blocked count are exported as observable gauges.
type InstrumentedAdmitter struct {
	inner     ratelimit.Admitter
	tracer    trace.Tracer
	duration  metric.Float64Histogram
	decisions metric.Int64Counter
}

// NewInstrumentedAdmitter creates the decorator. stats may be nil, in which
// case the table gauges are not registered.
func NewInstrumentedAdmitter(inner ratelimit.Admitter, stats StatsSource) (*InstrumentedAdmitter, error) {
	tracer := otel.Tracer(instrumentationName)
	meter := otel.Meter(instrumentationName)

	duration, err := meter.Float64Histogram(
		"admission.decision.duration",
		metric.WithDescription("Duration of admission decisions in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	decisions, err := meter.Int64Counter(
		"admission.decisions",
		metric.WithDescription("Number of admission decisions by reason"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, err
	}

	if stats != nil {
		if _, err := meter.Int64ObservableGauge(
			"admission.table.size",
			metric.WithDescription("Number of identifiers currently tracked"),
			metric.WithUnit("{identifier}"),
			metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
				o.Observe(int64(stats.Stats().Tracked))
				return nil
			}),
		); err != nil {
			return nil, err
		}

		if _, err := meter.Int64ObservableGauge(
			"admission.table.blocked",
			metric.WithDescription("Number of identifiers inside their cooldown"),
			metric.WithUnit("{identifier}"),
			metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
				o.Observe(int64(stats.Stats().Blocked))
				return nil
			}),
		); err != nil {
			return nil, err
		}
	}

	return &InstrumentedAdmitter{
		inner:     inner,
		tracer:    tracer,
		duration:  duration,
		decisions: decisions,
	}, nil
}

func (a *InstrumentedAdmitter) Admit(ctx context.Context, identifier string) (admission.Decision, error) {
	ctx, span := a.tracer.Start(ctx, "admission.Admit",
		trace.WithAttributes(attribute.String("admission.identifier", identifier)),
	)
	start := time.Now()
	d, err := a.inner.Admit(ctx, identifier)
	a.record(ctx, span, start, err)
	return d, err
}

func (a *InstrumentedAdmitter) AdmitValue(ctx context.Context, v any) (admission.Decision, error) {
	ctx, span := a.tracer.Start(ctx, "admission.AdmitValue")
	if s, ok := v.(string); ok {
		span.SetAttributes(attribute.String("admission.identifier", s))
	}
	start := time.Now()
	d, err := a.inner.AdmitValue(ctx, v)
	a.record(ctx, span, start, err)
	return d, err
}

func (a *InstrumentedAdmitter) record(ctx context.Context, span trace.Span, start time.Time, err error) {
	reason := admission.ReasonOf(err)
	if reason == "" {
		reason = "error"
	}
	attrs := metric.WithAttributes(attribute.String("reason", string(reason)))

	a.duration.Record(ctx, time.Since(start).Seconds(), attrs)
	a.decisions.Add(ctx, 1, attrs)

	span.SetAttributes(attribute.String("admission.reason", string(reason)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
