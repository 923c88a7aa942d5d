package monitor

import (
	"context"
	"testing"
)

func TestGetSystemMetrics(t *testing.T) {
	metrics := GetSystemMetrics(context.Background())

	if metrics.TotalMemMB <= 0 {
		t.Error("expected positive total memory")
	}
	if metrics.FreeMemMB < 0 {
		t.Error("expected non-negative free memory")
	}
	if metrics.TotalMemory < 0 || metrics.TotalMemory > 100 {
		t.Errorf("memory percentage out of range: %.1f", metrics.TotalMemory)
	}
	if metrics.Uptime <= 0 {
		t.Error("expected positive uptime")
	}
}
