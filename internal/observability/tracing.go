package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope for tasked spans.
const TracerName = "github.com/tasked-labs/tasked"

// TracingConfig configures span export.
type TracingConfig struct {
	// Endpoint is the OTLP/HTTP endpoint URL, e.g. http://localhost:4318.
	// Tracing is disabled when empty.
	Endpoint string

	// ServiceName is reported as the service.name resource attribute.
	ServiceName string
}

// SetupTracing initialises OpenTelemetry tracing.
//
// Tracing is opt-in: with no endpoint configured SetupTracing returns a no-op
// shutdown function and no global provider is registered, so spans started
// through Tracer are non-recording.
//
// The returned shutdown function flushes pending spans and should be deferred
// by the caller.
func SetupTracing(ctx context.Context, cfg TracingConfig) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }

	if cfg.Endpoint == "" {
		return noop, nil
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "tasked-gateway"
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpointURL(cfg.Endpoint),
	)
	if err != nil {
		return noop, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
		),
	)
	if err != nil {
		return noop, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tp.Shutdown, nil
}

// Tracer returns the tasked tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}
