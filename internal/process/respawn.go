package process

import (
	"context"
	"time"
)

// DefaultRespawnDelay gives typical supervisors time to relaunch a process.
const DefaultRespawnDelay = 3 * time.Second

// Lister enumerates live processes for the respawn scan.
type Lister interface {
	Processes(ctx context.Context) ([]Identity, error)
}

// Respawn reports a process that reappeared under a new identity.
type Respawn struct {
	Name       string    `json:"name"`
	Original   Identity  `json:"original"`
	New        Identity  `json:"new"`
	DetectedAt time.Time `json:"detected_at"`
}

// RespawnWatcher performs one delayed scan for a terminated process's name.
// Matching is by name only, so unrelated processes sharing a common name
// (several tools called "python") are reported too; Respawn.New carries the
// exe path so the operator can tell.
type RespawnWatcher struct {
	lister Lister
	delay  time.Duration
}

// NewRespawnWatcher creates a watcher. A non-positive delay uses DefaultRespawnDelay.
func NewRespawnWatcher(lister Lister, delay time.Duration) *RespawnWatcher {
	if delay <= 0 {
		delay = DefaultRespawnDelay
	}
	return &RespawnWatcher{lister: lister, delay: delay}
}

// Delay returns the wait before the scan.
func (w *RespawnWatcher) Delay() time.Duration {
	return w.delay
}

// Watch runs Check in the background. The channel yields at most one
// Respawn and is closed when the watch concludes.
func (w *RespawnWatcher) Watch(ctx context.Context, original Identity) <-chan Respawn {
	ch := make(chan Respawn, 1)
	go func() {
		defer close(ch)
		if r, ok := w.Check(ctx, original); ok {
			ch <- r
		}
	}()
	return ch
}

// Check sleeps the delay, then scans once. Scan errors and cancellation
// conclude the watch without a result.
func (w *RespawnWatcher) Check(ctx context.Context, original Identity) (Respawn, bool) {
	timer := time.NewTimer(w.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return Respawn{}, false
	case <-timer.C:
	}

	procs, err := w.lister.Processes(ctx)
	if err != nil {
		return Respawn{}, false
	}
	for _, p := range procs {
		if sameName(p.Name, original.Name) && !p.Same(original) {
			return Respawn{
				Name:       original.Name,
				Original:   original,
				New:        p,
				DetectedAt: time.Now(),
			}, true
		}
	}
	return Respawn{}, false
}
