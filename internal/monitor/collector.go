package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/iamgilwell/procguard/internal/safety"
)

// DefaultServiceRefreshCycles is how many collection cycles pass between
// hosted-service enumerations.
const DefaultServiceRefreshCycles = 30

// Collector builds process snapshots. Collect calls are serialized; the rate
// state and the hosted-service map are private to the collector.
type Collector struct {
	source       Source
	services     ServiceEnumerator
	classifier   *safety.Classifier
	refreshEvery int
	now          func() time.Time

	mu     sync.Mutex
	rates  *RateTracker
	hosted map[int][]string
	cycle  int
}

// CollectorOption customizes a Collector.
type CollectorOption func(*Collector)

// WithServiceRefresh sets how many cycles pass between service enumerations.
func WithServiceRefresh(cycles int) CollectorOption {
	return func(c *Collector) {
		if cycles > 0 {
			c.refreshEvery = cycles
		}
	}
}

// WithClock overrides the collector's time source.
func WithClock(now func() time.Time) CollectorOption {
	return func(c *Collector) { c.now = now }
}

// NewCollector creates a collector. A nil services enumerator disables the
// hosted-service lookup.
func NewCollector(source Source, services ServiceEnumerator, classifier *safety.Classifier, opts ...CollectorOption) *Collector {
	if services == nil {
		services = NoServices{}
	}
	c := &Collector{
		source:       source,
		services:     services,
		classifier:   classifier,
		refreshEvery: DefaultServiceRefreshCycles,
		now:          time.Now,
		rates:        NewRateTracker(),
		hosted:       map[int][]string{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Collect enumerates the live process set and returns a complete snapshot.
func (c *Collector) Collect(ctx context.Context) (*Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	start := time.Now()

	if c.cycle%c.refreshEvery == 0 {
		c.refreshServices(ctx)
	}
	c.cycle++

	samples, err := c.source.Samples(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerating processes: %w", err)
	}
	now := c.now()

	names := make(map[int]string, len(samples))
	for _, s := range samples {
		names[s.PID] = s.Name
	}

	live := make(map[int]bool, len(samples))
	procs := make(map[int]*ProcessRecord, len(samples))
	for _, s := range samples {
		if live[s.PID] {
			continue
		}
		live[s.PID] = true
		rates := c.rates.Observe(s.PID, s.StartTime, s.Counters, now)
		procs[s.PID] = c.buildRecord(s, rates, names[s.ParentPID])
	}
	c.rates.Retain(live)

	return &Snapshot{Taken: now, Elapsed: time.Since(start), Processes: procs}, nil
}

// TrackedPIDs returns how many pids currently hold rate state.
func (c *Collector) TrackedPIDs() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rates.Len()
}

func (c *Collector) refreshServices(ctx context.Context) {
	hosted, err := c.services.HostedServices(ctx)
	if err != nil {
		// Keep the stale map; it is advisory.
		return
	}
	c.hosted = hosted
}

func (c *Collector) buildRecord(s Sample, rates Rates, parentName string) *ProcessRecord {
	rec := &ProcessRecord{
		PID:           s.PID,
		Name:          s.Name,
		ExePath:       s.ExePath,
		CommandLine:   s.CommandLine,
		ParentPID:     s.ParentPID,
		ParentName:    parentName,
		Username:      s.Username,
		StartTime:     s.StartTime,
		Status:        s.Status,
		CPUPercent:    rates.CPUPercent,
		MemoryBytes:   s.MemoryBytes,
		ThreadCount:   s.Threads,
		HandleCount:   s.Handles,
		DiskReadRate:  rates.DiskRead,
		DiskWriteRate: rates.DiskWrite,
		NetSendRate:   rates.NetSent,
		NetRecvRate:   rates.NetRecv,
	}
	if svcs := c.hosted[s.PID]; len(svcs) > 0 {
		rec.HostedServices = append([]string(nil), svcs...)
	}
	if c.classifier != nil {
		rec.Safety = c.classifier.Classify(s.Name, s.PID)
		if cat := c.classifier.Catalog(); cat != nil {
			if e, ok := cat.Lookup(s.Name); ok {
				rec.Category = string(e.Category)
			}
		}
	}
	if rec.Category == "" {
		rec.Category = string(safety.CategoryUnknown)
	}
	return rec
}
