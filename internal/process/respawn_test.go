package process

import (
	"context"
	"errors"
	"testing"
	"time"
)

type staticLister struct {
	procs []Identity
	err   error
}

func (l staticLister) Processes(context.Context) ([]Identity, error) {
	return l.procs, l.err
}

func TestRespawnCheck(t *testing.T) {
	start := time.Unix(1000, 0)
	original := Identity{PID: 5000, Name: "worker.exe", CreateTime: start}

	tests := []struct {
		name    string
		procs   []Identity
		wantPID int
	}{
		{"new pid same name", []Identity{{PID: 5101, Name: "worker.exe"}}, 5101},
		{"case insensitive", []Identity{{PID: 5102, Name: "WORKER.EXE"}}, 5102},
		{"original still listed", []Identity{{PID: 5000, Name: "worker.exe", CreateTime: start}}, 0},
		{"pid reuse with new start", []Identity{{PID: 5000, Name: "worker.exe", CreateTime: start.Add(time.Second)}}, 5000},
		{"different name", []Identity{{PID: 6000, Name: "worker2.exe"}}, 0},
		{"first match wins", []Identity{{PID: 7, Name: "worker.exe"}, {PID: 8, Name: "worker.exe"}}, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewRespawnWatcher(staticLister{procs: tt.procs}, time.Millisecond)
			r, ok := w.Check(context.Background(), original)
			if tt.wantPID == 0 {
				if ok {
					t.Errorf("unexpected respawn %+v", r)
				}
				return
			}
			if !ok || r.New.PID != tt.wantPID {
				t.Errorf("respawn = %+v, %v; want pid %d", r, ok, tt.wantPID)
			}
		})
	}
}

func TestRespawnScanErrorIsSwallowed(t *testing.T) {
	w := NewRespawnWatcher(staticLister{err: errors.New("enumeration failed")}, time.Millisecond)
	ch := w.Watch(context.Background(), Identity{PID: 1, Name: "x"})
	select {
	case r, ok := <-ch:
		if ok {
			t.Errorf("unexpected respawn %+v", r)
		}
	case <-time.After(time.Second):
		t.Fatal("watch did not conclude")
	}
}

func TestRespawnWatchCancelled(t *testing.T) {
	w := NewRespawnWatcher(staticLister{procs: []Identity{{PID: 2, Name: "x"}}}, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	ch := w.Watch(ctx, Identity{PID: 1, Name: "x"})
	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			t.Error("cancelled watch reported a respawn")
		}
	case <-time.After(time.Second):
		t.Fatal("cancelled watch did not close")
	}
}

func TestConcurrentWatchersAreIndependent(t *testing.T) {
	lister := staticLister{procs: []Identity{{PID: 20, Name: "a"}, {PID: 21, Name: "b"}}}
	w := NewRespawnWatcher(lister, 5*time.Millisecond)

	chA := w.Watch(context.Background(), Identity{PID: 10, Name: "a"})
	chB := w.Watch(context.Background(), Identity{PID: 11, Name: "b"})
	chC := w.Watch(context.Background(), Identity{PID: 12, Name: "c"})

	if r := <-chA; r.New.PID != 20 {
		t.Errorf("watcher a = %+v", r)
	}
	if r := <-chB; r.New.PID != 21 {
		t.Errorf("watcher b = %+v", r)
	}
	if _, ok := <-chC; ok {
		t.Error("watcher c should conclude without a result")
	}
}

func TestRespawnDefaultDelay(t *testing.T) {
	if d := NewRespawnWatcher(staticLister{}, 0).Delay(); d != DefaultRespawnDelay {
		t.Errorf("delay = %v, want %v", d, DefaultRespawnDelay)
	}
}
