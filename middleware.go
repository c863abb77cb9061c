package tracing

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gath-stack/gotracing/internal/tracker"
)

// Middleware returns a chi-compatible middleware that traces every handled
// request. This is the trace-all form: when TraceAllRequests is enabled,
// handlers decorated with TraceHandler skip their own instrumentation for
// requests flowing through this middleware, so each call produces exactly
// one server span per layer.
//
// Per request, the middleware:
//   - Extracts inbound trace context from the (normalized) request headers,
//     falling back to a root span when none can be recovered
//   - Opens a span and pushes its scope onto the request's stack
//   - Invokes the handler with the span threaded through the context
//   - Captures the response status via a wrapping response writer
//   - Renames the span to the chi route pattern once it is known
//   - Ends the scope with the status, or with the recovered error before
//     re-panicking when the handler panics
//
// When metrics are enabled the same wrapper records request count, duration,
// and in-flight gauge, so traces and metrics describe identical calls.
func (s *Stack) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r = r.WithContext(tracker.MarkMiddlewareTraced(r.Context()))
			r, _ = s.tracker.Begin(r, r.Method+" "+r.URL.Path, nil)

			start := time.Now()
			if s.HTTP != nil {
				s.HTTP.RequestStarted(r.Context())
			}

			ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			defer func() {
				route := routePattern(r)
				if span := s.tracker.Span(r); span != nil {
					span.SetName(r.Method + " " + route)
				}

				if rec := recover(); rec != nil {
					s.tracker.End(r, tracker.Result{Err: recoveredError(rec)})
					if s.HTTP != nil {
						s.HTTP.RecordRequest(r.Context(), r.Method, route,
							http.StatusInternalServerError, time.Since(start), ww.bytesWritten)
					}
					panic(rec)
				}

				s.tracker.End(r, tracker.Result{StatusCode: ww.statusCode})
				if s.HTTP != nil {
					s.HTTP.RecordRequest(r.Context(), r.Method, route,
						ww.statusCode, time.Since(start), ww.bytesWritten)
				}
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// TraceHandler wraps an individual handler with tracing, the decorator form.
//
// operation names the span (typically the handler name). attributes lists
// request attribute names tagged onto the span when present and non-empty;
// names resolve against the context attribute bag (WithAttribute) first,
// then against request headers.
//
// When trace-all mode is active and the surrounding Middleware already
// instruments this call, the wrapper invokes the handler untraced to avoid
// double spans. Otherwise it follows the same begin/end protocol as the
// middleware; nested decorated handlers on the same request produce child
// spans popped in strict LIFO order.
func (s *Stack) TraceHandler(operation string, attributes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s.traceAll && tracker.MiddlewareTraced(r.Context()) {
				next.ServeHTTP(w, r)
				return
			}

			r, _ = s.tracker.Begin(r, operation, attributes)

			ww, wrapped := wrapWriter(w)

			defer func() {
				if rec := recover(); rec != nil {
					s.tracker.End(r, tracker.Result{Err: recoveredError(rec)})
					panic(rec)
				}
				s.tracker.End(r, tracker.Result{StatusCode: wrapped.statusCode})
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// TraceHandlerFunc is TraceHandler for plain handler functions.
func (s *Stack) TraceHandlerFunc(operation string, attributes ...string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		wrapped := s.TraceHandler(operation, attributes...)(next)
		return wrapped.ServeHTTP
	}
}

// responseWriter wraps http.ResponseWriter to capture status code and bytes written.
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func (w *responseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.bytesWritten += int64(n)
	return n, err
}

// wrapWriter reuses an existing responseWriter when instrumentation layers
// stack on the same request, so nested scopes observe the same status code.
func wrapWriter(w http.ResponseWriter) (http.ResponseWriter, *responseWriter) {
	if ww, ok := w.(*responseWriter); ok {
		return ww, ww
	}
	ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
	return ww, ww
}

// routePattern extracts the templated route from chi's RouteContext
// (e.g. "/api/users/{id}") and falls back to the raw path for routers
// without patterns.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

func recoveredError(rec any) error {
	if err, ok := rec.(error); ok {
		return err
	}
	return fmt.Errorf("panic: %v", rec)
}
