// Package otelspan is the span-per-operation helper this repository's
// credential store and session manager use to emit
// go.opentelemetry.io/otel traces. It mirrors the shape of
// pkg/manager/credential.go's otel.StartSpan(tracer, ctx, name, attrs...),
// returning a derived context and a deferred end-span closure that redacts
// the error before attaching it to the span, built directly against
// go.opentelemetry.io/otel/trace since go-client/pkg/otel was not present
// in the retrieved reference set.
//
// Exporting spans (the trace "sink") is an external collaborator per
// spec.md §1 ("Out of scope: ... tracing/logging sinks"); this package
// only produces spans against whatever github.com/mutablelogic/go-client
// tracer provider the hosting binary registers via otel.SetTracerProvider
// — the default, no provider registered, is otel's built-in no-op tracer.
package otelspan

import (
	"context"

	otel "go.opentelemetry.io/otel"
	attribute "go.opentelemetry.io/otel/attribute"
	codes "go.opentelemetry.io/otel/codes"
	trace "go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/mutablelogic/go-mcp")

// Start begins a span named name with attrs attached, and returns the
// derived context plus a function the caller defers to end the span. Pass
// the named return error of the calling function so a non-nil error is
// recorded on the span without leaking request/response bodies (credential
// material is attached as attributes by the caller only when it is safe
// to do so, e.g. a server URL, never a token value).
func Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(err error)) {
	ctx, span := tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}
