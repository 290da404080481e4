// Package tracing configures OpenTelemetry for event dispatch. When tracing
// is disabled a no-op tracer is returned so callers never branch on it.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// InstrumentationName is the tracer name used by the relay.
const InstrumentationName = "relay-router"

// Config holds tracing configuration.
type Config struct {
	Enabled     bool
	ServiceName string
	ZipkinURL   string
	Version     string
}

// Shutdown flushes and stops the tracer provider.
type Shutdown func(context.Context) error

// Setup returns a tracer and its shutdown hook.
func Setup(ctx context.Context, cfg Config) (trace.Tracer, Shutdown, error) {
	if !cfg.Enabled {
		return noop.NewTracerProvider().Tracer(InstrumentationName), func(context.Context) error { return nil }, nil
	}

	exporter, err := zipkin.New(cfg.ZipkinURL)
	if err != nil {
		return nil, nil, fmt.Errorf("create zipkin exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.Version),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("create tracing resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return tp.Tracer(InstrumentationName), tp.Shutdown, nil
}
