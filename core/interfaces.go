package core

import (
	"context"
)

// Logger is the minimal structured logging interface every component in the
// pipeline depends on. Implementations must be safe when disabled (NoOpLogger)
// so that tests and library callers never need to special-case logging.
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Debug(msg string, fields map[string]interface{})

	InfoWithContext(ctx context.Context, msg string, fields map[string]interface{})
	ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{})
	WarnWithContext(ctx context.Context, msg string, fields map[string]interface{})
	DebugWithContext(ctx context.Context, msg string, fields map[string]interface{})
}

// ComponentAwareLogger lets a component attach its own name to every log line
// it emits while still sharing the root logger's sinks and level.
//
// Component naming convention:
//   - "core/semanticcache"   - two-tier cache
//   - "core/vectorstore"     - pgvector client
//   - "core/resilience"      - circuit breaker / retry / tool cache
//   - "agent/supervisor"     - classifier agent
//   - "agent/docsearch"      - documentation retrieval agent
//   - "agent/codegen"        - code generation agent
//   - "core/workflow"        - the cyclic graph engine
type ComponentAwareLogger interface {
	Logger
	WithComponent(component string) Logger
}

// Telemetry is the observability facility the core consumes. The HTTP/auth
// collaborator is responsible for wiring a real exporter; the core only
// opens spans and sets attributes on them.
type Telemetry interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
	RecordMetric(name string, value float64, labels map[string]string)
}

// Span represents a single unit of work in a trace.
type Span interface {
	End()
	SetAttribute(key string, value interface{})
	RecordError(err error)
}

// WithComponent tags logger with component if it implements
// ComponentAwareLogger, and returns logger unchanged otherwise. Every
// constructor in the pipeline calls this instead of asserting the
// interface itself, so a plain Logger is always an acceptable argument.
func WithComponent(logger Logger, component string) Logger {
	if cal, ok := logger.(ComponentAwareLogger); ok {
		return cal.WithComponent(component)
	}
	return logger
}

// NoOpLogger discards everything. Used as the zero-value default so every
// constructor in the pipeline can assume Logger is never nil.
type NoOpLogger struct{}

func (n *NoOpLogger) Info(msg string, fields map[string]interface{})  {}
func (n *NoOpLogger) Error(msg string, fields map[string]interface{}) {}
func (n *NoOpLogger) Warn(msg string, fields map[string]interface{})  {}
func (n *NoOpLogger) Debug(msg string, fields map[string]interface{}) {}

func (n *NoOpLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
}
func (n *NoOpLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
}
func (n *NoOpLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
}
func (n *NoOpLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
}

// NoOpTelemetry is the default Telemetry when the caller doesn't wire a real
// tracer. StartSpan still returns a usable Span so call sites never nil-check.
type NoOpTelemetry struct{}

func (n *NoOpTelemetry) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	return ctx, &NoOpSpan{}
}

func (n *NoOpTelemetry) RecordMetric(name string, value float64, labels map[string]string) {}

// NoOpSpan discards attributes and errors.
type NoOpSpan struct{}

func (n *NoOpSpan) End()                                       {}
func (n *NoOpSpan) SetAttribute(key string, value interface{}) {}
func (n *NoOpSpan) RecordError(err error)                      {}
