package otelhelper_test

import (
	"testing"

	"github.com/pipecd-crm/wfm/pkg/otelhelper"
	"github.com/stretchr/testify/assert"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSampler(t *testing.T) {
	tests := []struct {
		ratio   float64
		sampled bool
	}{
		{ratio: 1, sampled: true},
		{ratio: 2.5, sampled: true},
		{ratio: 0, sampled: false},
		{ratio: -1, sampled: false},
	}

	for _, tt := range tests {
		recorder := tracetest.NewSpanRecorder()
		provider := sdktrace.NewTracerProvider(
			sdktrace.WithSpanProcessor(recorder),
			sdktrace.WithSampler(otelhelper.Sampler(tt.ratio)),
		)

		_, span := otelhelper.StartSpan(t.Context(), provider.Tracer("test"), "root")
		span.End()

		assert.Equal(t, tt.sampled, span.SpanContext().IsSampled(), "ratio %v", tt.ratio)

		if tt.sampled {
			assert.Len(t, recorder.Ended(), 1)
		} else {
			assert.Empty(t, recorder.Ended())
		}
	}
}

func TestSampler_FractionDescribesRatio(t *testing.T) {
	assert.Contains(t, otelhelper.Sampler(0.25).Description(), "TraceIDRatioBased{0.25}")
}
