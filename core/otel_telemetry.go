package core

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// OtelTelemetry implements Telemetry over the OpenTelemetry SDK's tracer
// and meter, the way the teacher's pkg/telemetry.OTELImpl does for its
// zero-configuration mode - minus the concrete OTLP/stdout exporter wiring,
// which spec.md §6 leaves to the HTTP collaborator (Non-goals: "full OTel
// SDK wiring"). With no span processor registered, spans are created and
// ended but not exported; a caller that wants real export registers one on
// the *sdktrace.TracerProvider returned by NewOtelTelemetry before passing
// it into Services.
type OtelTelemetry struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
	meter    metric.Meter

	mu       sync.Mutex
	counters map[string]metric.Float64Counter
}

// NewOtelTelemetry builds an OtelTelemetry for serviceName, using
// meterProvider for metric recording (pass otel.GetMeterProvider() for the
// global default, or a caller-configured one).
func NewOtelTelemetry(serviceName string, meterProvider metric.MeterProvider) *OtelTelemetry {
	provider := sdktrace.NewTracerProvider()
	return &OtelTelemetry{
		provider: provider,
		tracer:   provider.Tracer(serviceName),
		meter:    meterProvider.Meter(serviceName),
		counters: make(map[string]metric.Float64Counter),
	}
}

// StartSpan opens a span named name as a child of ctx's current span, if any.
func (t *OtelTelemetry) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	spanCtx, span := t.tracer.Start(ctx, name)
	return spanCtx, &otelSpan{span: span}
}

// RecordMetric adds value to a lazily-created Float64Counter named name,
// tagged with labels. Counter creation failures are treated as a no-op:
// a metrics backend hiccup must never affect request processing.
func (t *OtelTelemetry) RecordMetric(name string, value float64, labels map[string]string) {
	counter := t.counterFor(name)
	if counter == nil {
		return
	}
	attrs := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		attrs = append(attrs, attribute.String(k, v))
	}
	counter.Add(context.Background(), value, metric.WithAttributes(attrs...))
}

func (t *OtelTelemetry) counterFor(name string) metric.Float64Counter {
	t.mu.Lock()
	defer t.mu.Unlock()

	if c, ok := t.counters[name]; ok {
		return c
	}
	c, err := t.meter.Float64Counter(name)
	if err != nil {
		return nil
	}
	t.counters[name] = c
	return c
}

// Shutdown flushes and releases the underlying tracer provider. Safe to
// call even when no exporter was ever registered.
func (t *OtelTelemetry) Shutdown(ctx context.Context) error {
	return t.provider.Shutdown(ctx)
}

// otelSpan adapts an OTel trace.Span to the narrow Span interface.
type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) End() {
	s.span.End()
}

func (s *otelSpan) SetAttribute(key string, value interface{}) {
	s.span.SetAttributes(toAttribute(key, value))
}

func (s *otelSpan) RecordError(err error) {
	s.span.RecordError(err)
}

func toAttribute(key string, value interface{}) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case bool:
		return attribute.Bool(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	default:
		return attribute.String(key, fmt.Sprintf("%v", v))
	}
}
