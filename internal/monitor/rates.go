package monitor

import "time"

// Counters are the cumulative values a rate is derived from.
type Counters struct {
	DiskRead   uint64
	DiskWrite  uint64
	NetSent    uint64
	NetRecv    uint64
	CPUSeconds float64
}

// Rates are per-second values derived from two Counters samples.
type Rates struct {
	DiskRead   float64
	DiskWrite  float64
	NetSent    float64
	NetRecv    float64
	CPUPercent float64
}

type rateSample struct {
	counters Counters
	started  time.Time
	at       time.Time
}

// RateTracker remembers the previous counter sample per pid. It is not safe
// for concurrent use; the Collector serializes access.
type RateTracker struct {
	prev map[int]rateSample
}

// NewRateTracker creates an empty tracker.
func NewRateTracker() *RateTracker {
	return &RateTracker{prev: make(map[int]rateSample)}
}

// Observe records cur for pid at time at and returns the rates against the
// previous sample. A first sample, a non-positive interval, or a different
// start time (pid reuse) yields zero rates. Counter decreases clamp to zero.
func (t *RateTracker) Observe(pid int, started time.Time, cur Counters, at time.Time) Rates {
	prev, ok := t.prev[pid]
	t.prev[pid] = rateSample{counters: cur, started: started, at: at}
	if !ok || !prev.started.Equal(started) {
		return Rates{}
	}
	dt := at.Sub(prev.at).Seconds()
	if dt <= 0 {
		return Rates{}
	}
	var cpu float64
	if cur.CPUSeconds > prev.counters.CPUSeconds {
		cpu = (cur.CPUSeconds - prev.counters.CPUSeconds) / dt * 100.0
	}
	return Rates{
		DiskRead:   perSecond(cur.DiskRead, prev.counters.DiskRead, dt),
		DiskWrite:  perSecond(cur.DiskWrite, prev.counters.DiskWrite, dt),
		NetSent:    perSecond(cur.NetSent, prev.counters.NetSent, dt),
		NetRecv:    perSecond(cur.NetRecv, prev.counters.NetRecv, dt),
		CPUPercent: cpu,
	}
}

// Retain drops state for every pid not in live.
func (t *RateTracker) Retain(live map[int]bool) {
	for pid := range t.prev {
		if !live[pid] {
			delete(t.prev, pid)
		}
	}
}

// Len returns the number of tracked pids.
func (t *RateTracker) Len() int {
	return len(t.prev)
}

func perSecond(now, prev uint64, dt float64) float64 {
	if now <= prev {
		return 0
	}
	return float64(now-prev) / dt
}
