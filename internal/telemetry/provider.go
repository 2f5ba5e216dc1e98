// Package telemetry exports assembled compilations as OpenTelemetry spans,
// giving build dashboards a per-compilation view of an intercepted run.
// Export is optional and driven entirely by the standard OTEL_* variables.
package telemetry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"earshot/internal/compdb"
	"earshot/internal/config"
)

// InitProvider initializes the tracer provider against the configured
// OTLP/HTTP endpoint.
func InitProvider(ctx context.Context, cfg *config.OTELConfig) (*sdktrace.TracerProvider, error) {
	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.GetEndpoint()),
		otlptracehttp.WithInsecure(),
		otlptracehttp.WithTimeout(10*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("creating OTLP trace exporter: %w", err)
	}

	opts := []resource.Option{
		resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)),
	}
	if attrs := cfg.ParseResourceAttributes(); len(attrs) > 0 {
		opts = append(opts, resource.WithAttributes(attrs...))
	}
	res, err := resource.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	), nil
}

// ShutdownProvider flushes and stops the provider.
func ShutdownProvider(ctx context.Context, tp *sdktrace.TracerProvider) error {
	if err := tp.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down tracer provider: %w", err)
	}
	return nil
}

// EmitCompilations creates one span per compilation database entry under a
// parent span covering the whole build.
func EmitCompilations(ctx context.Context, tracer trace.Tracer, build []string, entries []compdb.Entry) {
	ctx, parent := tracer.Start(ctx, "intercept-build",
		trace.WithAttributes(
			attribute.String("build.command", strings.Join(build, " ")),
			attribute.Int("build.compilations", len(entries)),
		))
	defer parent.End()

	for _, entry := range entries {
		_, span := tracer.Start(ctx, "compile",
			trace.WithAttributes(
				attribute.String("compile.file", entry.File),
				attribute.String("compile.directory", entry.Directory),
				attribute.String("compile.arguments", strings.Join(entry.Arguments, " ")),
			))
		span.End()
	}
}
