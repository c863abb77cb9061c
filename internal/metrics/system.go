package metrics

import (
	"context"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SystemMetricsConfig configures system-level metric collection.
type SystemMetricsConfig struct {
	// DiskPath is the mount point observed for disk usage. Defaults to "/".
	DiskPath string
}

// SystemMetrics exposes host-level observables: CPU utilization, load
// averages, memory, and disk usage for one mount point. Values are collected
// lazily on each export through registered callbacks.
type SystemMetrics struct {
	cpuUsagePercent metric.Float64ObservableGauge
	cpuLoadAvg1     metric.Float64ObservableGauge
	cpuLoadAvg5     metric.Float64ObservableGauge
	memUsed         metric.Int64ObservableGauge
	memUsedPercent  metric.Float64ObservableGauge
	diskUsed        metric.Int64ObservableGauge
	diskUsedPercent metric.Float64ObservableGauge

	diskPath string
}

// NewSystemMetrics creates and registers the system observables.
//
// Collection is best effort: probes that fail (containers without /proc
// access, restricted environments) are skipped for that export cycle rather
// than failing the callback.
func NewSystemMetrics(meter metric.Meter, cfg SystemMetricsConfig) (*SystemMetrics, error) {
	if cfg.DiskPath == "" {
		cfg.DiskPath = "/"
	}
	sm := &SystemMetrics{diskPath: cfg.DiskPath}

	var err error
	if sm.cpuUsagePercent, err = meter.Float64ObservableGauge(
		"system.cpu.usage",
		metric.WithDescription("CPU usage percent across all cores"),
		metric.WithUnit("%"),
	); err != nil {
		return nil, err
	}
	if sm.cpuLoadAvg1, err = meter.Float64ObservableGauge(
		"system.cpu.load_average.1m",
		metric.WithDescription("1-minute load average"),
	); err != nil {
		return nil, err
	}
	if sm.cpuLoadAvg5, err = meter.Float64ObservableGauge(
		"system.cpu.load_average.5m",
		metric.WithDescription("5-minute load average"),
	); err != nil {
		return nil, err
	}
	if sm.memUsed, err = meter.Int64ObservableGauge(
		"system.memory.used",
		metric.WithDescription("Used physical memory"),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if sm.memUsedPercent, err = meter.Float64ObservableGauge(
		"system.memory.utilization",
		metric.WithDescription("Used physical memory percent"),
		metric.WithUnit("%"),
	); err != nil {
		return nil, err
	}
	if sm.diskUsed, err = meter.Int64ObservableGauge(
		"system.disk.used",
		metric.WithDescription("Used disk space on the observed mount"),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if sm.diskUsedPercent, err = meter.Float64ObservableGauge(
		"system.disk.utilization",
		metric.WithDescription("Used disk space percent on the observed mount"),
		metric.WithUnit("%"),
	); err != nil {
		return nil, err
	}

	_, err = meter.RegisterCallback(
		sm.observe,
		sm.cpuUsagePercent, sm.cpuLoadAvg1, sm.cpuLoadAvg5,
		sm.memUsed, sm.memUsedPercent,
		sm.diskUsed, sm.diskUsedPercent,
	)
	if err != nil {
		return nil, err
	}
	return sm, nil
}

func (sm *SystemMetrics) observe(ctx context.Context, o metric.Observer) error {
	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		o.ObserveFloat64(sm.cpuUsagePercent, percents[0])
	}
	if avg, err := load.AvgWithContext(ctx); err == nil {
		o.ObserveFloat64(sm.cpuLoadAvg1, avg.Load1)
		o.ObserveFloat64(sm.cpuLoadAvg5, avg.Load5)
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		o.ObserveInt64(sm.memUsed, int64(vm.Used))
		o.ObserveFloat64(sm.memUsedPercent, vm.UsedPercent)
	}
	if usage, err := disk.UsageWithContext(ctx, sm.diskPath); err == nil {
		attrs := metric.WithAttributes(attribute.String("path", sm.diskPath))
		o.ObserveInt64(sm.diskUsed, int64(usage.Used), attrs)
		o.ObserveFloat64(sm.diskUsedPercent, usage.UsedPercent, attrs)
	}
	return nil
}
