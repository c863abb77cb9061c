package tracker

import (
	"context"
	"net/http"
)

type contextKey int

const (
	requestIDKey contextKey = iota
	attributesKey
	middlewareTracedKey
)

// WithRequestID returns a context carrying the correlation id that keys this
// request's scope stack. Every nested handler sharing the request context
// shares the id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the correlation id threaded through the request
// context, if any.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey).(string)
	return id, ok
}

// WithAttribute returns a context carrying a named request attribute. Handlers
// can stash values here (user ids, tenant names) and have them tagged onto the
// span by listing the name in the decorator's traced attributes.
func WithAttribute(ctx context.Context, name, value string) context.Context {
	attrs, _ := ctx.Value(attributesKey).(map[string]string)
	next := make(map[string]string, len(attrs)+1)
	for k, v := range attrs {
		next[k] = v
	}
	next[name] = value
	return context.WithValue(ctx, attributesKey, next)
}

// MarkMiddlewareTraced flags the request context as already instrumented by the
// trace-all middleware, so decorator wrappers further down can skip themselves.
func MarkMiddlewareTraced(ctx context.Context) context.Context {
	return context.WithValue(ctx, middlewareTracedKey, true)
}

// MiddlewareTraced reports whether the trace-all middleware owns this call.
func MiddlewareTraced(ctx context.Context) bool {
	traced, _ := ctx.Value(middlewareTracedKey).(bool)
	return traced
}

// lookupAttribute resolves a traced attribute name against the request: the
// context attribute bag first, then request headers.
func lookupAttribute(r *http.Request, name string) (string, bool) {
	if attrs, ok := r.Context().Value(attributesKey).(map[string]string); ok {
		if v, ok := attrs[name]; ok {
			return v, true
		}
	}
	if v := r.Header.Get(name); v != "" {
		return v, true
	}
	return "", false
}
