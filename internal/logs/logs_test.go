package logs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func spanContext(t *testing.T) trace.SpanContext {
	t.Helper()
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
}

func TestTraceFieldsWithoutSpan(t *testing.T) {
	assert.Nil(t, TraceFields(context.Background()))
}

func TestWithContextAddsCorrelationFields(t *testing.T) {
	core, logged := observer.New(zap.InfoLevel)
	log := zap.New(core)

	ctx := trace.ContextWithSpanContext(context.Background(), spanContext(t))
	WithContext(ctx, log).Info("handling request")

	entries := logged.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", fields["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", fields["span_id"])
}

func TestWithContextWithoutSpanReturnsSameLogger(t *testing.T) {
	core, logged := observer.New(zap.InfoLevel)
	log := zap.New(core)

	assert.Same(t, log, WithContext(context.Background(), log))
	WithContext(context.Background(), log).Info("plain")

	entries := logged.All()
	require.Len(t, entries, 1)
	assert.Empty(t, entries[0].ContextMap())
}
