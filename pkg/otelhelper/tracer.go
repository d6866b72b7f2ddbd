// Package otelhelper provides distributed tracing for workflow engine operations.
package otelhelper

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otlptracehttp "go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	// Common attribute keys.
	WorkflowIDKey     = "wfm.workflow.id"
	StepIDKey         = "wfm.step.id"
	FromStepIDKey     = "wfm.step.from_id"
	ToStepIDKey       = "wfm.step.to_id"
	TransitionIDKey   = "wfm.transition.id"
	StatusIDKey       = "wfm.status.id"
	ProjectTypeIDKey  = "wfm.project_type.id"
	ProjectIDKey      = "wfm.project.id"
	StepCountKey      = "wfm.steps.count"
	TransitionAllowed = "wfm.transition.allowed"
)

// Shutdown flushes and stops the tracer provider.
type Shutdown func(ctx context.Context) error

// TracerConfig describes the exported service. SampleRatio applies to root spans
// only; child spans follow their parent's decision.
type TracerConfig struct {
	ServiceName    string
	ServiceVersion string
	SampleRatio    float64
}

// NewTracer installs an OTLP/HTTP tracer provider as the global provider. The
// exporter endpoint comes from the standard OTEL_EXPORTER_OTLP_* variables.
// nolint:ireturn // OpenTelemetry tracers are interfaces
func NewTracer(ctx context.Context, cfg TracerConfig) (trace.Tracer, Shutdown, error) {
	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build trace resource: %w", err)
	}

	exporter, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(Sampler(cfg.SampleRatio)),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return provider.Tracer(cfg.ServiceName), provider.Shutdown, nil
}

// Sampler samples every root span for ratios of 1 or more, none for 0 or less,
// and the given fraction otherwise.
// nolint:ireturn // samplers are interfaces
func Sampler(ratio float64) sdktrace.Sampler {
	switch {
	case ratio >= 1:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	case ratio <= 0:
		return sdktrace.ParentBased(sdktrace.NeverSample())
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	}
}

// NoopTracer is used when tracing is disabled.
// nolint:ireturn
func NoopTracer() trace.Tracer {
	return noop.NewTracerProvider().Tracer("wfm")
}

// nolint:ireturn,spancheck
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}
