package metrics

import (
	"context"
	"runtime"

	"go.opentelemetry.io/otel/metric"
)

// RuntimeMetrics reports the Go process state in real time: heap allocation,
// garbage collection behavior, and the number of active goroutines. Metrics
// are gathered through OpenTelemetry asynchronous instruments and reported
// automatically via a registered callback.
type RuntimeMetrics struct {
	goroutines   metric.Int64ObservableGauge
	heapAlloc    metric.Int64ObservableGauge
	heapInuse    metric.Int64ObservableGauge
	heapObjects  metric.Int64ObservableGauge
	gcCount      metric.Int64ObservableCounter
	gcPauseTotal metric.Int64ObservableCounter
}

// NewRuntimeMetrics creates and registers the standard runtime observables.
func NewRuntimeMetrics(meter metric.Meter) (*RuntimeMetrics, error) {
	rm := &RuntimeMetrics{}

	var err error
	if rm.goroutines, err = meter.Int64ObservableGauge(
		"runtime.go.goroutines",
		metric.WithDescription("Number of active goroutines"),
	); err != nil {
		return nil, err
	}
	if rm.heapAlloc, err = meter.Int64ObservableGauge(
		"runtime.go.mem.heap_alloc",
		metric.WithDescription("Bytes of allocated heap objects"),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if rm.heapInuse, err = meter.Int64ObservableGauge(
		"runtime.go.mem.heap_inuse",
		metric.WithDescription("Bytes in in-use heap spans"),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if rm.heapObjects, err = meter.Int64ObservableGauge(
		"runtime.go.mem.heap_objects",
		metric.WithDescription("Number of allocated heap objects"),
	); err != nil {
		return nil, err
	}
	if rm.gcCount, err = meter.Int64ObservableCounter(
		"runtime.go.gc.count",
		metric.WithDescription("Completed GC cycles"),
	); err != nil {
		return nil, err
	}
	if rm.gcPauseTotal, err = meter.Int64ObservableCounter(
		"runtime.go.gc.pause_total",
		metric.WithDescription("Cumulative GC pause time"),
		metric.WithUnit("ns"),
	); err != nil {
		return nil, err
	}

	_, err = meter.RegisterCallback(
		rm.observe,
		rm.goroutines, rm.heapAlloc, rm.heapInuse, rm.heapObjects,
		rm.gcCount, rm.gcPauseTotal,
	)
	if err != nil {
		return nil, err
	}
	return rm, nil
}

func (rm *RuntimeMetrics) observe(_ context.Context, o metric.Observer) error {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	o.ObserveInt64(rm.goroutines, int64(runtime.NumGoroutine()))
	o.ObserveInt64(rm.heapAlloc, int64(ms.HeapAlloc))
	o.ObserveInt64(rm.heapInuse, int64(ms.HeapInuse))
	o.ObserveInt64(rm.heapObjects, int64(ms.HeapObjects))
	o.ObserveInt64(rm.gcCount, int64(ms.NumGC))
	o.ObserveInt64(rm.gcPauseTotal, int64(ms.PauseTotalNs))
	return nil
}

// NumGoroutines returns the current goroutine count.
func NumGoroutines() int {
	return runtime.NumGoroutine()
}

// MemoryUsageMB returns the current heap allocation in megabytes.
func MemoryUsageMB() float64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return float64(ms.HeapAlloc) / (1024 * 1024)
}
