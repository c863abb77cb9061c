package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// HTTPMetrics provides OpenTelemetry instruments for HTTP server observability.
//
// It tracks total request count, duration distributions, and the number of
// requests currently in flight, grouped by method, route pattern, and status
// code per the OpenTelemetry `http.server.*` semantic conventions.
//
// The request middleware records into these instruments alongside the spans it
// opens, so traces and metrics describe the same call.
type HTTPMetrics struct {
	requestsTotal   metric.Int64Counter
	requestDuration metric.Float64Histogram
	responseSize    metric.Int64Histogram
	activeRequests  metric.Int64UpDownCounter
}

// NewHTTPMetrics initializes and registers the HTTP server instruments.
//
// Each instrument is configured with explicit bucket boundaries suitable for
// web traffic latency and payload analysis. The resulting instance can be
// shared safely across servers and routes.
func NewHTTPMetrics(meter metric.Meter) (*HTTPMetrics, error) {
	requestsTotal, err := meter.Int64Counter(
		"http.server.requests",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"http.server.duration",
		metric.WithDescription("HTTP request duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, err
	}

	responseSize, err := meter.Int64Histogram(
		"http.server.response.size",
		metric.WithDescription("HTTP response size in bytes"),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(100, 1000, 10000, 100000, 1000000, 10000000),
	)
	if err != nil {
		return nil, err
	}

	activeRequests, err := meter.Int64UpDownCounter(
		"http.server.active_requests",
		metric.WithDescription("Number of in-flight HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	return &HTTPMetrics{
		requestsTotal:   requestsTotal,
		requestDuration: requestDuration,
		responseSize:    responseSize,
		activeRequests:  activeRequests,
	}, nil
}

// RequestStarted increments the in-flight request gauge.
func (h *HTTPMetrics) RequestStarted(ctx context.Context) {
	h.activeRequests.Add(ctx, 1)
}

// RecordRequest records one completed request and decrements the in-flight
// gauge. route should be the templated route pattern, not the raw path, to
// keep cardinality bounded.
func (h *HTTPMetrics) RecordRequest(
	ctx context.Context,
	method string,
	route string,
	statusCode int,
	duration time.Duration,
	responseSize int64,
) {
	attrs := metric.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", route),
		attribute.Int("http.status_code", statusCode),
	)

	h.requestsTotal.Add(ctx, 1, attrs)
	h.requestDuration.Record(ctx, duration.Seconds(), attrs)
	h.responseSize.Record(ctx, responseSize, attrs)
	h.activeRequests.Add(ctx, -1)
}
