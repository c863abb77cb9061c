// Package tracker maintains the per-request span lifecycle: it starts a
// server span for every instrumented handler invocation, stacks nested scopes
// belonging to the same request, and guarantees each span is closed exactly
// once when the matching end fires, whether the handler returned or panicked.
//
// Tracker failures never propagate: any error raised while beginning or
// ending a span is logged and discarded, so tracing can never break the
// request it observes.
package tracker

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Standard span tag keys, following the OpenTelemetry HTTP server conventions
// the rest of the stack uses.
const (
	tagComponent      = "component"
	tagHTTPMethod     = "http.method"
	tagHTTPURL        = "http.url"
	tagHTTPStatusCode = "http.status_code"
	tagError          = "error"

	componentName = "http"
)

// Logger is the minimal zap-compatible logging surface the tracker needs.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
}

// StartSpanCallback is invoked with every newly started span and its request.
// A panicking callback is swallowed so user hooks cannot break instrumentation.
type StartSpanCallback func(span trace.Span, r *http.Request)

// Result carries the outcome of a handled call into End. At most one of
// StatusCode and Err is meaningful; both may be zero.
type Result struct {
	StatusCode int
	Err        error
}

// Scope wraps one active span together with its one-shot close.
type Scope struct {
	span      trace.Span
	closeOnce sync.Once
}

// Span returns the span this scope owns.
func (s *Scope) Span() trace.Span {
	return s.span
}

// Close finishes the underlying span, recording its end time. Closing an
// already closed scope is a no-op.
func (s *Scope) Close() {
	s.closeOnce.Do(func() {
		s.span.End()
	})
}

// Tracker owns the scope stacks of all in-flight requests. It is safe for
// concurrent use from independent requests; scopes belonging to one request
// are pushed and popped in strict LIFO order by the logical flow handling it.
//
// A scope whose End never fires (request abandoned without unwinding, hijacked
// connection) stays open until process exit. Integrations must guarantee End
// on every path; the middleware does so with a deferred call.
type Tracker struct {
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
	callback   StartSpanCallback
	log        Logger

	mu     sync.Mutex
	scopes map[string][]*Scope
}

// New creates a Tracker starting spans from tracer and recovering inbound
// trace context with propagator. callback may be nil.
func New(tracer trace.Tracer, propagator propagation.TextMapPropagator, callback StartSpanCallback, log Logger) *Tracker {
	return &Tracker{
		tracer:     tracer,
		propagator: propagator,
		callback:   callback,
		log:        log,
		scopes:     make(map[string][]*Scope),
	}
}

// Begin starts a span for one handler invocation and pushes its scope onto
// the request's stack.
//
// The returned request carries the correlation id and the new span context;
// callers must pass it (not the original) to the handler so nested Begin and
// End calls resolve the same stack and parent their spans correctly.
//
// Inbound trace context is recovered from the normalized headers on the
// outermost call. When no valid context can be extracted, the new span is a
// root and its context is injected back into the request headers so nested
// calls sharing the carrier can recover it.
//
// Begin never fails: any internal error is logged and the original request
// is returned with a nil scope.
func (t *Tracker) Begin(r *http.Request, operation string, attributes []string) (req *http.Request, scope *Scope) {
	req = r
	defer func() {
		if rec := recover(); rec != nil {
			t.log.Error("failed to begin request span",
				zap.String("operation", operation),
				zap.Any("panic", rec))
			req, scope = r, nil
		}
	}()

	if operation == "" {
		operation = req.Method + " " + req.URL.Path
	}

	ctx := req.Context()
	id, ok := RequestIDFromContext(ctx)
	if !ok {
		id = uuid.NewString()
		ctx = WithRequestID(ctx, id)
	}

	// Only the outermost call extracts from headers; nested calls inherit
	// the active span from the request context.
	extractFailed := false
	if !trace.SpanContextFromContext(ctx).IsValid() {
		ctx = t.propagator.Extract(ctx, NormalizeHeader(req.Header))
		extractFailed = !trace.SpanContextFromContext(ctx).IsValid()
	}

	ctx, span := t.tracer.Start(ctx, operation, trace.WithSpanKind(trace.SpanKindServer))
	if extractFailed {
		// Malformed or absent inbound context: the span above is a root.
		// Put its context on the carrier for nested users of the headers.
		t.propagator.Inject(ctx, propagation.HeaderCarrier(req.Header))
	}
	req = req.WithContext(ctx)

	scope = &Scope{span: span}
	t.mu.Lock()
	t.scopes[id] = append(t.scopes[id], scope)
	t.mu.Unlock()

	span.SetAttributes(
		attribute.String(tagComponent, componentName),
		attribute.String(tagHTTPMethod, req.Method),
		attribute.String(tagHTTPURL, req.URL.RequestURI()),
	)
	for _, name := range attributes {
		if v, ok := lookupAttribute(req, name); ok && v != "" {
			span.SetAttributes(attribute.String(name, v))
		}
	}

	t.invokeCallback(span, req)
	return req, scope
}

// End pops the most recent scope of the request and closes it, tagging the
// span with the call's outcome first. Without a matching Begin it is a no-op.
// The stack entry is removed entirely once its last scope is popped.
//
// End never fails: any internal error is logged and discarded.
func (t *Tracker) End(r *http.Request, res Result) {
	defer func() {
		if rec := recover(); rec != nil {
			t.log.Error("failed to end request span", zap.Any("panic", rec))
		}
	}()

	id, ok := RequestIDFromContext(r.Context())
	if !ok {
		return
	}

	t.mu.Lock()
	stack := t.scopes[id]
	if len(stack) == 0 {
		t.mu.Unlock()
		return
	}
	scope := stack[len(stack)-1]
	if len(stack) == 1 {
		delete(t.scopes, id)
	} else {
		t.scopes[id] = stack[:len(stack)-1]
	}
	t.mu.Unlock()

	span := scope.span
	if res.Err != nil {
		span.SetAttributes(attribute.Bool(tagError, true))
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Err.Error())
	}
	if res.StatusCode != 0 {
		span.SetAttributes(attribute.Int(tagHTTPStatusCode, res.StatusCode))
		if res.Err == nil {
			if res.StatusCode >= 400 {
				span.SetStatus(codes.Error, http.StatusText(res.StatusCode))
				span.SetAttributes(attribute.Bool(tagError, true))
			} else {
				span.SetStatus(codes.Ok, "")
			}
		}
	}

	scope.Close()
}

// Span returns the outermost active span for the request: the one opened by
// the first Begin, regardless of nesting since. Returns nil when no scope is
// active.
func (t *Tracker) Span(r *http.Request) trace.Span {
	id, ok := RequestIDFromContext(r.Context())
	if !ok {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if stack := t.scopes[id]; len(stack) > 0 {
		return stack[0].span
	}
	return nil
}

// ActiveRequests returns the number of requests with at least one open scope.
func (t *Tracker) ActiveRequests() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.scopes)
}

func (t *Tracker) invokeCallback(span trace.Span, r *http.Request) {
	if t.callback == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			t.log.Error("start span callback failed",
				zap.Error(fmt.Errorf("panic: %v", rec)))
		}
	}()
	t.callback(span, r)
}
