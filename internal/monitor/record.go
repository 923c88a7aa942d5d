package monitor

import (
	"sort"
	"strings"
	"time"

	"github.com/iamgilwell/procguard/internal/safety"
)

// ProcessRecord describes one process as seen by one collection cycle.
// Records are built once and never modified; the next cycle replaces them.
type ProcessRecord struct {
	PID            int         `json:"pid"`
	Name           string      `json:"name"`
	ExePath        string      `json:"exe_path,omitempty"`
	CommandLine    string      `json:"command_line,omitempty"`
	ParentPID      int         `json:"parent_pid"`
	ParentName     string      `json:"parent_name,omitempty"`
	Username       string      `json:"username,omitempty"`
	StartTime      time.Time   `json:"start_time"`
	Status         string      `json:"status,omitempty"`
	CPUPercent     float64     `json:"cpu_percent"`
	MemoryBytes    uint64      `json:"memory_bytes"`
	ThreadCount    int         `json:"thread_count"`
	HandleCount    int         `json:"handle_count"`
	DiskReadRate   float64     `json:"disk_read_rate"`
	DiskWriteRate  float64     `json:"disk_write_rate"`
	NetSendRate    float64     `json:"net_send_rate"`
	NetRecvRate    float64     `json:"net_recv_rate"`
	HostedServices []string    `json:"hosted_services,omitempty"`
	Category       string      `json:"category,omitempty"`
	Safety         safety.Info `json:"safety"`
}

// MemoryMB returns resident memory in megabytes.
func (r *ProcessRecord) MemoryMB() float64 {
	return float64(r.MemoryBytes) / (1024 * 1024)
}

// Snapshot is one complete collection cycle.
type Snapshot struct {
	Taken     time.Time
	Elapsed   time.Duration
	Processes map[int]*ProcessRecord
}

// Len returns the number of processes in the snapshot.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Processes)
}

// Get returns the record for pid.
func (s *Snapshot) Get(pid int) (*ProcessRecord, bool) {
	if s == nil {
		return nil, false
	}
	r, ok := s.Processes[pid]
	return r, ok
}

// ByName returns every record whose name matches, case-insensitively.
func (s *Snapshot) ByName(name string) []*ProcessRecord {
	if s == nil {
		return nil
	}
	var out []*ProcessRecord
	for _, r := range s.Processes {
		if strings.EqualFold(r.Name, name) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out
}

// Records returns all records sorted by CPU descending, then PID.
func (s *Snapshot) Records() []*ProcessRecord {
	if s == nil {
		return nil
	}
	procs := make([]*ProcessRecord, 0, len(s.Processes))
	for _, p := range s.Processes {
		procs = append(procs, p)
	}
	sort.Slice(procs, func(i, j int) bool {
		if procs[i].CPUPercent != procs[j].CPUPercent {
			return procs[i].CPUPercent > procs[j].CPUPercent
		}
		return procs[i].PID < procs[j].PID
	})
	return procs
}
