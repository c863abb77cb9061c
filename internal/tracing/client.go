// Package tracing provides span helpers for calls an instrumented handler
// makes to other services.
package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// ClientTracing provides client-kind spans and context propagation for
// outbound calls made while handling a traced request.
//
// Spans started here parent under the active server span in the context, so
// downstream work shows up nested inside the request's trace. Inject writes
// the current trace context onto outgoing request headers so the next hop can
// continue the trace.
type ClientTracing struct {
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
}

// NewClientTracing initializes outbound-call tracing instrumentation.
//
// The tracer should come from the same provider as the server-side spans so
// parent/child linkage holds. The instance is safe for reuse across clients.
func NewClientTracing(tracer trace.Tracer, propagator propagation.TextMapPropagator) *ClientTracing {
	return &ClientTracing{
		tracer:     tracer,
		propagator: propagator,
	}
}

// StartSpan creates a client-kind span for an outbound operation. End it with
// span.End() when the call completes and use RecordError on failure.
func (c *ClientTracing) StartSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	ctx, span := c.tracer.Start(ctx, operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("component", "http-client"),
		),
	)
	return ctx, span
}

// Inject writes the trace context held by ctx onto the outgoing request's
// headers, making the downstream service a child of the current span.
func (c *ClientTracing) Inject(ctx context.Context, r *http.Request) {
	c.propagator.Inject(ctx, propagation.HeaderCarrier(r.Header))
}

// RecordError marks the span as failed and records the error event.
func (c *ClientTracing) RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.Bool("error", true))
	}
}

// RecordStatus tags the span with the response status and sets span status
// accordingly.
func (c *ClientTracing) RecordStatus(span trace.Span, statusCode int) {
	span.SetAttributes(attribute.Int("http.status_code", statusCode))
	if statusCode >= 400 {
		span.SetStatus(codes.Error, http.StatusText(statusCode))
	} else {
		span.SetStatus(codes.Ok, "")
	}
}
