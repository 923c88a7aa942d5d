package process

import (
	"context"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/iamgilwell/procguard/internal/oserr"
)

// Identity names one process instance. A pid alone is reused over time, so
// the create time is part of the identity.
type Identity struct {
	PID        int       `json:"pid"`
	ParentPID  int       `json:"parent_pid"`
	Name       string    `json:"name"`
	ExePath    string    `json:"exe_path,omitempty"`
	CreateTime time.Time `json:"create_time"`
}

// Same reports whether i and o are the same process instance.
func (i Identity) Same(o Identity) bool {
	return i.PID == o.PID && i.CreateTime.Equal(o.CreateTime)
}

// Signaler is the OS boundary of the termination controller.
type Signaler interface {
	// Lookup resolves a live pid; a gone process yields oserr.ErrNotFound.
	Lookup(ctx context.Context, pid int) (Identity, error)
	// Processes lists every readable live process.
	Processes(ctx context.Context) ([]Identity, error)
	// Alive reports whether the exact instance is still running.
	Alive(ctx context.Context, id Identity) bool
	// Terminate requests a graceful stop.
	Terminate(ctx context.Context, pid int) error
	// Kill stops the process unconditionally.
	Kill(ctx context.Context, pid int) error
}

// Psutil implements Signaler with gopsutil.
type Psutil struct{}

// Lookup implements Signaler.
func (Psutil) Lookup(ctx context.Context, pid int) (Identity, error) {
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return Identity{}, oserr.Classify(err)
	}
	return identify(ctx, p)
}

// Processes implements Signaler.
func (Psutil) Processes(ctx context.Context) ([]Identity, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, oserr.Classify(err)
	}
	ids := make([]Identity, 0, len(procs))
	for _, p := range procs {
		id, err := identify(ctx, p)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Alive implements Signaler.
func (Psutil) Alive(ctx context.Context, id Identity) bool {
	if !signalZero(id.PID) {
		return false
	}
	p, err := process.NewProcessWithContext(ctx, int32(id.PID))
	if err != nil {
		return false
	}
	if !id.CreateTime.IsZero() {
		if ms, err := p.CreateTimeWithContext(ctx); err == nil && !time.UnixMilli(ms).Equal(id.CreateTime) {
			return false
		}
	}
	if status, err := p.StatusWithContext(ctx); err == nil {
		for _, s := range status {
			if s == process.Zombie {
				return false
			}
		}
	}
	return true
}

// Terminate implements Signaler.
func (Psutil) Terminate(ctx context.Context, pid int) error {
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return oserr.Classify(err)
	}
	return oserr.Classify(p.TerminateWithContext(ctx))
}

// Kill implements Signaler.
func (Psutil) Kill(ctx context.Context, pid int) error {
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return oserr.Classify(err)
	}
	return oserr.Classify(p.KillWithContext(ctx))
}

func identify(ctx context.Context, p *process.Process) (Identity, error) {
	name, err := p.NameWithContext(ctx)
	if err != nil {
		return Identity{}, oserr.Classify(err)
	}
	id := Identity{PID: int(p.Pid), Name: name}
	id.ExePath, _ = p.ExeWithContext(ctx)
	if ppid, err := p.PpidWithContext(ctx); err == nil {
		id.ParentPID = int(ppid)
	}
	if ms, err := p.CreateTimeWithContext(ctx); err == nil {
		id.CreateTime = time.UnixMilli(ms)
	}
	return id, nil
}

func sameName(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
