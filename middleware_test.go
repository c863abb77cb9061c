package tracing

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap/zaptest"

	"github.com/gath-stack/gotracing/internal/tracker"
	ctrace "github.com/gath-stack/gotracing/internal/tracing"
)

func newTestStack(t *testing.T, traceAll bool) (*Stack, *tracetest.SpanRecorder) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	prop := propagation.TraceContext{}
	log := zaptest.NewLogger(t)
	tracer := tp.Tracer("test")
	return &Stack{
		log:      log,
		tracker:  tracker.New(tracer, prop, nil, log),
		traceAll: traceAll,
		Client:   ctrace.NewClientTracing(tracer, prop),
	}, sr
}

func spanAttrs(s sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	m := make(map[attribute.Key]attribute.Value, len(s.Attributes()))
	for _, kv := range s.Attributes() {
		m[kv.Key] = kv.Value
	}
	return m
}

func TestMiddlewareTracesRequest(t *testing.T) {
	stack, sr := newTestStack(t, true)

	router := chi.NewRouter()
	router.Use(stack.Middleware())
	router.Get("/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/42", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "GET /users/{id}", span.Name(), "span must carry the route pattern")
	assert.Equal(t, trace.SpanKindServer, span.SpanKind())

	attrs := spanAttrs(span)
	assert.Equal(t, "/users/42", attrs["http.url"].AsString())
	assert.Equal(t, int64(http.StatusOK), attrs["http.status_code"].AsInt64())
}

func TestMiddlewareContinuesInboundTrace(t *testing.T) {
	stack, sr := newTestStack(t, true)

	router := chi.NewRouter()
	router.Use(stack.Middleware())
	router.Get("/ping", func(w http.ResponseWriter, r *http.Request) {})

	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("traceparent", "00-"+traceID+"-00f067aa0ba902b7-01")

	router.ServeHTTP(httptest.NewRecorder(), req)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, traceID, spans[0].SpanContext().TraceID().String())
	assert.True(t, spans[0].Parent().IsRemote())
}

func TestMiddlewarePanicEndsSpanAndRepanics(t *testing.T) {
	stack, sr := newTestStack(t, true)

	router := chi.NewRouter()
	router.Use(stack.Middleware())
	router.Get("/boom", func(w http.ResponseWriter, r *http.Request) {
		panic("handler exploded")
	})

	require.Panics(t, func() {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))
	}, "the original panic must propagate unchanged")

	spans := sr.Ended()
	require.Len(t, spans, 1, "the span must still be closed")
	assert.True(t, spanAttrs(spans[0])["error"].AsBool())

	var sawException bool
	for _, ev := range spans[0].Events() {
		if ev.Name == "exception" {
			sawException = true
		}
	}
	assert.True(t, sawException)
}

func TestDecoratorSuppressedUnderTraceAll(t *testing.T) {
	stack, sr := newTestStack(t, true)

	router := chi.NewRouter()
	router.Use(stack.Middleware())
	router.With(stack.TraceHandler("getUser")).Get("/users/{id}", func(w http.ResponseWriter, r *http.Request) {})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/users/7", nil))

	spans := sr.Ended()
	require.Len(t, spans, 1, "decorator must not double-trace middleware-owned calls")
	assert.Equal(t, "GET /users/{id}", spans[0].Name())
}

func TestDecoratorNestsUnderMiddleware(t *testing.T) {
	stack, sr := newTestStack(t, false)

	router := chi.NewRouter()
	router.Use(stack.Middleware())
	router.With(stack.TraceHandler("getUser")).Get("/users/{id}", func(w http.ResponseWriter, r *http.Request) {})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/users/7", nil))

	spans := sr.Ended()
	require.Len(t, spans, 2)

	inner, outer := spans[0], spans[1]
	assert.Equal(t, "getUser", inner.Name())
	assert.Equal(t, "GET /users/{id}", outer.Name())
	assert.Equal(t, outer.SpanContext().SpanID(), inner.Parent().SpanID())
	assert.Equal(t, outer.SpanContext().TraceID(), inner.SpanContext().TraceID())
}

func TestDecoratorStandalone(t *testing.T) {
	stack, sr := newTestStack(t, false)

	handler := stack.TraceHandler("viewMissing")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "viewMissing", spans[0].Name())

	attrs := spanAttrs(spans[0])
	assert.Equal(t, int64(http.StatusNotFound), attrs["http.status_code"].AsInt64())
	assert.True(t, attrs["error"].AsBool())
}

func TestDecoratorTagsTracedAttributes(t *testing.T) {
	stack, sr := newTestStack(t, false)

	withAttr := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(WithAttribute(r.Context(), "user_id", "42")))
		})
	}

	router := chi.NewRouter()
	router.With(withAttr, stack.TraceHandler("getUser", "user_id")).
		Get("/users/{id}", func(w http.ResponseWriter, r *http.Request) {})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/users/42", nil))

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "42", spanAttrs(spans[0])["user_id"].AsString())
}

func TestSpanAccessorDuringRequest(t *testing.T) {
	stack, _ := newTestStack(t, true)

	var sawSpan bool
	router := chi.NewRouter()
	router.Use(stack.Middleware())
	router.Get("/observe", func(w http.ResponseWriter, r *http.Request) {
		span := stack.Span(r)
		sawSpan = span != nil && span.SpanContext().IsValid()
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/observe", nil))
	assert.True(t, sawSpan, "handlers must be able to reach the request's span")
}
