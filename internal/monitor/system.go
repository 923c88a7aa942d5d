package monitor

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemMetrics holds system-wide resource metrics.
type SystemMetrics struct {
	TotalCPU    float64
	TotalMemory float64
	TotalMemMB  float64
	FreeMemMB   float64
	LoadAvg1    float64
	LoadAvg5    float64
	LoadAvg15   float64
	Uptime      time.Duration
}

// GetSystemMetrics reads system-wide metrics. Unavailable values stay zero.
func GetSystemMetrics(ctx context.Context) *SystemMetrics {
	m := &SystemMetrics{}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		m.TotalMemMB = float64(vm.Total) / (1024 * 1024)
		m.FreeMemMB = float64(vm.Available) / (1024 * 1024)
		m.TotalMemory = vm.UsedPercent
	}
	if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
		m.TotalCPU = pct[0]
	}
	if avg, err := load.AvgWithContext(ctx); err == nil {
		m.LoadAvg1, m.LoadAvg5, m.LoadAvg15 = avg.Load1, avg.Load5, avg.Load15
	}
	if secs, err := host.UptimeWithContext(ctx); err == nil {
		m.Uptime = time.Duration(secs) * time.Second
	}
	return m
}
