package vybiumzkexec

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName    = "github.com/vybium/vybium-zkexec"
	instrumentationVersion = "1.0.0"
)

// telemetry holds the instruments a host reports through.
type telemetry struct {
	tracer   trace.Tracer
	outcomes metric.Int64Counter
	cycles   metric.Int64Histogram
}

func newTelemetry(tp trace.TracerProvider, mp metric.MeterProvider) (*telemetry, error) {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	if mp == nil {
		mp = otel.GetMeterProvider()
	}

	meter := mp.Meter(instrumentationName, metric.WithInstrumentationVersion(instrumentationVersion))

	outcomes, err := meter.Int64Counter("zkexec.lifecycle.outcomes",
		metric.WithDescription("Terminal lifecycle states reached"),
		metric.WithUnit("{lifecycle}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create outcome counter: %w", err)
	}

	cycles, err := meter.Int64Histogram("zkexec.session.cycles",
		metric.WithDescription("Cycles consumed by a guest session"),
		metric.WithUnit("{cycle}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cycle histogram: %w", err)
	}

	return &telemetry{
		tracer:   tp.Tracer(instrumentationName, trace.WithInstrumentationVersion(instrumentationVersion)),
		outcomes: outcomes,
		cycles:   cycles,
	}, nil
}

func (t *telemetry) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

func (t *telemetry) outcome(ctx context.Context, state State, image string) {
	t.outcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("state", state.String()),
		attribute.String("image_id", image),
	))
}

func (t *telemetry) recordCycles(ctx context.Context, cycles uint64, image string) {
	v := int64(cycles)
	if v < 0 {
		v = int64(^uint64(0) >> 1)
	}
	t.cycles.Record(ctx, v, metric.WithAttributes(attribute.String("image_id", image)))
}
