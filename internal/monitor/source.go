package monitor

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// Sample is the raw per-process reading from the OS process table.
type Sample struct {
	PID         int
	Name        string
	ExePath     string
	CommandLine string
	ParentPID   int
	Username    string
	StartTime   time.Time
	Status      string
	MemoryBytes uint64
	Threads     int
	Handles     int
	Counters    Counters
}

// Source enumerates the live process table. Processes that exit or deny
// access mid-enumeration are omitted, not reported.
type Source interface {
	Samples(ctx context.Context) ([]Sample, error)
}

// PsutilSource reads the process table through gopsutil.
type PsutilSource struct {
	// NetCounters enables per-process network counters where the platform
	// exposes them. On Linux these are network-namespace totals.
	NetCounters bool
}

// Samples implements Source.
func (s PsutilSource) Samples(ctx context.Context) ([]Sample, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	samples := make([]Sample, 0, len(procs))
	for _, p := range procs {
		sample, ok := s.read(ctx, p)
		if !ok {
			continue
		}
		samples = append(samples, sample)
	}
	return samples, nil
}

func (s PsutilSource) read(ctx context.Context, p *process.Process) (Sample, bool) {
	name, err := p.NameWithContext(ctx)
	if err != nil || name == "" {
		return Sample{}, false
	}
	sample := Sample{PID: int(p.Pid), Name: name}

	sample.ExePath, _ = p.ExeWithContext(ctx)
	sample.CommandLine, _ = p.CmdlineWithContext(ctx)
	sample.Username, _ = p.UsernameWithContext(ctx)
	if ppid, err := p.PpidWithContext(ctx); err == nil {
		sample.ParentPID = int(ppid)
	}
	if ms, err := p.CreateTimeWithContext(ctx); err == nil {
		sample.StartTime = time.UnixMilli(ms)
	}
	if status, err := p.StatusWithContext(ctx); err == nil && len(status) > 0 {
		sample.Status = status[0]
	}
	if mem, err := p.MemoryInfoWithContext(ctx); err == nil && mem != nil {
		sample.MemoryBytes = mem.RSS
	}
	if n, err := p.NumThreadsWithContext(ctx); err == nil {
		sample.Threads = int(n)
	}
	if n, err := p.NumFDsWithContext(ctx); err == nil {
		sample.Handles = int(n)
	}
	if times, err := p.TimesWithContext(ctx); err == nil && times != nil {
		sample.Counters.CPUSeconds = times.User + times.System
	}
	if io, err := p.IOCountersWithContext(ctx); err == nil && io != nil {
		sample.Counters.DiskRead = io.ReadBytes
		sample.Counters.DiskWrite = io.WriteBytes
	}
	if s.NetCounters {
		if stats, err := p.NetIOCountersWithContext(ctx, false); err == nil {
			for _, st := range stats {
				sample.Counters.NetSent += st.BytesSent
				sample.Counters.NetRecv += st.BytesRecv
			}
		}
	}
	return sample, true
}
