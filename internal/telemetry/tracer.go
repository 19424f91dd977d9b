// Package telemetry wires OpenTelemetry tracing for the composer. Spans come
// from two places: otelhttp wraps the HTTP surface, and the orchestrator opens
// one span per conversation turn. The exporter writes pretty-printed traces to
// stdout; deployments that want a collector embed the composer and install
// their own provider before calling Serve.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// Init installs a stdout-exporting tracer provider as the process-global
// provider and returns its shutdown hook. The hook flushes buffered spans, so
// it belongs in the composer's shutdown path, not behind a plain defer in main.
func Init(serviceName string, logger *slog.Logger) (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	// Merging with resource.Default keeps the SDK-provided attributes
	// alongside our service name. The empty schema URL avoids a merge
	// conflict between semconv versions.
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes("", semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("build trace resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	// W3C trace context in, W3C trace context out: turns initiated by an
	// instrumented client join that client's trace.
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("tracing enabled",
		slog.String("service", serviceName),
		slog.String("exporter", "stdout"))

	return tp.Shutdown, nil
}
