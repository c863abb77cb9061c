// Package logs correlates log entries with the active trace.
package logs

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// TraceFields returns zap fields identifying the span active in ctx, or nil
// when the context carries no valid span context.
func TraceFields(ctx context.Context) []zap.Field {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return nil
	}
	return []zap.Field{
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	}
}

// WithContext returns a logger whose entries carry the trace_id and span_id
// of the span active in ctx. When no span is active the logger is returned
// unchanged, so call sites do not need to branch.
func WithContext(ctx context.Context, log *zap.Logger) *zap.Logger {
	fields := TraceFields(ctx)
	if len(fields) == 0 {
		return log
	}
	return log.With(fields...)
}
