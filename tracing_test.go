package tracing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap/zaptest"
)

func setTestEnv(t *testing.T) {
	t.Helper()
	t.Setenv("APP_NAME", "test-service")
	t.Setenv("APP_VERSION", "1.0.0")
	t.Setenv("APP_ENV", "test")
}

func TestInitWithEverythingDisabled(t *testing.T) {
	setTestEnv(t)

	stack, err := Init(zaptest.NewLogger(t), nil)
	require.NoError(t, err)
	assert.False(t, stack.Config().IsEnabled())

	// The middleware still runs, producing no-op spans, so instrumented
	// applications behave identically with tracing switched off.
	router := http.Handler(stack.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	require.NoError(t, stack.Shutdown(context.Background()))
}

func TestInitWithProviderOverride(t *testing.T) {
	setTestEnv(t)

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	traceAll := true

	stack, err := Init(zaptest.NewLogger(t), &InitOptions{
		TracerProvider:   tp,
		TraceAllRequests: &traceAll,
	})
	require.NoError(t, err)

	handler := stack.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ping", nil))

	require.Len(t, sr.Ended(), 1)
	assert.Equal(t, "GET /ping", sr.Ended()[0].Name())

	require.NoError(t, stack.Shutdown(context.Background()))
}

func TestInitCallbackReceivesSpans(t *testing.T) {
	setTestEnv(t)

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	var callbackRuns int
	stack, err := Init(zaptest.NewLogger(t), &InitOptions{
		TracerProvider: tp,
		StartSpanCallback: func(span trace.Span, r *http.Request) {
			callbackRuns++
		},
	})
	require.NoError(t, err)

	handler := stack.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.Equal(t, 1, callbackRuns)
}

func TestMustInitPanicsOnInvalidConfig(t *testing.T) {
	t.Setenv("APP_NAME", "")
	t.Setenv("APP_VERSION", "")
	t.Setenv("APP_ENV", "")

	require.Panics(t, func() {
		MustInit(zaptest.NewLogger(t), nil)
	})
}
