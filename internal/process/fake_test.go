package process

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/iamgilwell/procguard/internal/oserr"
)

type fakeProc struct {
	id         Identity
	alive      bool
	exitPolls  int // polls after a graceful stop before exit; -1 never
	ignoreKill bool
	termErr    error
	killErr    error

	terminated bool
	polls      int
}

type fakeSignaler struct {
	mu      sync.Mutex
	procs   map[int]*fakeProc
	calls   []string
	listErr error
}

func newFakeSignaler(procs ...*fakeProc) *fakeSignaler {
	f := &fakeSignaler{procs: make(map[int]*fakeProc)}
	for _, p := range procs {
		p.alive = true
		f.procs[p.id.PID] = p
	}
	return f
}

func proc(pid, ppid int, name string) *fakeProc {
	return &fakeProc{id: Identity{PID: pid, ParentPID: ppid, Name: name, CreateTime: time.Unix(int64(1000+pid), 0)}}
}

func (f *fakeSignaler) record(format string, args ...any) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeSignaler) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeSignaler) Lookup(_ context.Context, pid int) (Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.procs[pid]
	if !ok || !p.alive {
		return Identity{}, fmt.Errorf("pid %d: %w", pid, oserr.ErrNotFound)
	}
	return p.id, nil
}

func (f *fakeSignaler) Processes(context.Context) ([]Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var ids []Identity
	for _, p := range f.procs {
		if p.alive {
			ids = append(ids, p.id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].PID < ids[j].PID })
	return ids, nil
}

func (f *fakeSignaler) Alive(_ context.Context, id Identity) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.procs[id.PID]
	if !ok || !p.alive || !p.id.Same(id) {
		return false
	}
	if p.terminated && p.exitPolls >= 0 {
		p.polls++
		if p.polls > p.exitPolls {
			p.alive = false
			return false
		}
	}
	return true
}

func (f *fakeSignaler) Terminate(_ context.Context, pid int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("term %d", pid)
	p, ok := f.procs[pid]
	if !ok || !p.alive {
		return fmt.Errorf("terminate %d: %w", pid, oserr.ErrNotFound)
	}
	if p.termErr != nil {
		return p.termErr
	}
	p.terminated = true
	if p.exitPolls == 0 {
		p.alive = false
	}
	return nil
}

func (f *fakeSignaler) Kill(_ context.Context, pid int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("kill %d", pid)
	p, ok := f.procs[pid]
	if !ok || !p.alive {
		return fmt.Errorf("kill %d: %w", pid, oserr.ErrNotFound)
	}
	if p.killErr != nil {
		return p.killErr
	}
	if !p.ignoreKill {
		p.alive = false
	}
	return nil
}

// spawn adds a live process, as a supervisor would.
func (f *fakeSignaler) spawn(p *fakeProc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.alive = true
	f.procs[p.id.PID] = p
}
