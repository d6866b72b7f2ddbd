package otelhelper

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrorKindKey holds the domain error kind of a failed operation.
const ErrorKindKey = "wfm.error.kind"

// SetError records err on span under kind. Only internal failures set the span status
// to Error. A nil err is a no-op.
func SetError(span trace.Span, err error, kind string, internal bool) {
	if err == nil {
		return
	}

	span.SetAttributes(attribute.String(ErrorKindKey, kind))
	span.RecordError(err)

	if internal {
		span.SetStatus(codes.Error, err.Error())
	}
}
