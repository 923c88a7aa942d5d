package monitor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// ProcessMonitor runs the collector on a fixed interval and publishes each
// snapshot atomically. Readers see either the previous or the next complete
// snapshot.
type ProcessMonitor struct {
	collector    *Collector
	scanInterval time.Duration
	current      atomic.Pointer[Snapshot]

	mu       sync.RWMutex
	onUpdate []func(*Snapshot)
	onError  []func(error)
}

// NewProcessMonitor creates a new monitor.
func NewProcessMonitor(collector *Collector, scanInterval time.Duration) *ProcessMonitor {
	if scanInterval <= 0 {
		scanInterval = 2 * time.Second
	}
	return &ProcessMonitor{
		collector:    collector,
		scanInterval: scanInterval,
	}
}

// OnUpdate adds a callback invoked after each successful scan.
func (m *ProcessMonitor) OnUpdate(fn func(*Snapshot)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onUpdate = append(m.onUpdate, fn)
}

// OnError adds a callback invoked when a scan fails.
func (m *ProcessMonitor) OnError(fn func(error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onError = append(m.onError, fn)
}

// Start begins the scanning loop and blocks until ctx is done.
func (m *ProcessMonitor) Start(ctx context.Context) error {
	m.Refresh(ctx)

	ticker := time.NewTicker(m.scanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.Refresh(ctx)
		}
	}
}

// Refresh runs one collection cycle and publishes the result.
func (m *ProcessMonitor) Refresh(ctx context.Context) (*Snapshot, error) {
	snap, err := m.collector.Collect(ctx)

	m.mu.RLock()
	onUpdate, onError := m.onUpdate, m.onError
	m.mu.RUnlock()

	if err != nil {
		for _, fn := range onError {
			fn(err)
		}
		return nil, err
	}
	m.current.Store(snap)
	for _, fn := range onUpdate {
		fn(snap)
	}
	return snap, nil
}

// Snapshot returns the latest published snapshot, or nil before the first scan.
func (m *ProcessMonitor) Snapshot() *Snapshot {
	return m.current.Load()
}

// Interval returns the scan interval.
func (m *ProcessMonitor) Interval() time.Duration {
	return m.scanInterval
}

// FormatProcessLine formats a process for text output.
func FormatProcessLine(p *ProcessRecord) string {
	return fmt.Sprintf("%7d %-20s %-10s %6.1f%% %8.1fMB %9s %9s %-7s %s",
		p.PID, truncate(p.Name, 20), truncate(p.Username, 10),
		p.CPUPercent, p.MemoryMB(),
		FormatRate(p.DiskReadRate), FormatRate(p.DiskWriteRate),
		p.Safety.Tier, truncate(p.CommandLine, 40))
}

// FormatRate renders a bytes-per-second value.
func FormatRate(bps float64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)
	switch {
	case bps >= GB:
		return fmt.Sprintf("%.1fG/s", bps/GB)
	case bps >= MB:
		return fmt.Sprintf("%.1fM/s", bps/MB)
	case bps >= KB:
		return fmt.Sprintf("%.1fK/s", bps/KB)
	default:
		return fmt.Sprintf("%.0fB/s", bps)
	}
}

// truncate shortens s to n runes, the last being an ellipsis.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n < 1 {
		return ""
	}
	return string(r[:n-1]) + "…"
}
