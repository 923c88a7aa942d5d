package notification

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/iamgilwell/procguard/internal/process"
	"github.com/iamgilwell/procguard/internal/suppression"
)

// AuditEntry is a single audit log entry.
type AuditEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Event     string    `json:"event"`
	PID       int       `json:"pid,omitempty"`
	Name      string    `json:"name,omitempty"`
	Tier      string    `json:"tier,omitempty"`
	State     string    `json:"state,omitempty"`
	Forced    bool      `json:"forced,omitempty"`
	Method    string    `json:"method,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Success   *bool     `json:"success,omitempty"`
	Details   string    `json:"details,omitempty"`
}

// Auditor writes an append-only audit trail.
type Auditor struct {
	mu   sync.Mutex
	file *os.File
	now  func() time.Time
}

// NewAuditor creates a new auditor.
func NewAuditor(filePath string) (*Auditor, error) {
	if filePath == "" {
		return &Auditor{now: time.Now}, nil
	}

	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening audit file: %w", err)
	}

	return &Auditor{file: f, now: time.Now}, nil
}

// Close closes the audit file.
func (a *Auditor) Close() {
	if a.file != nil {
		a.file.Close()
	}
}

// LogTermination records a termination outcome.
func (a *Auditor) LogTermination(o process.Outcome) {
	event := "termination"
	if o.Tree {
		event = "tree_termination"
	}
	ok := o.Success
	a.log(AuditEntry{
		Event:   event,
		PID:     o.PID,
		Name:    o.Name,
		Tier:    o.Safety.Tier.String(),
		State:   o.State.String(),
		Forced:  o.Forced,
		Success: &ok,
		Details: o.Message,
	})
}

// LogRespawn records a respawn detection.
func (a *Auditor) LogRespawn(r process.Respawn) {
	a.log(AuditEntry{
		Event:   "respawn",
		PID:     r.New.PID,
		Name:    r.Name,
		Details: fmt.Sprintf("original_pid=%d exe=%s", r.Original.PID, r.New.ExePath),
	})
}

// LogSuppression records a suppression apply, restore or forget.
func (a *Auditor) LogSuppression(ev suppression.Event) {
	ok := ev.Success
	entry := AuditEntry{
		Event:   "suppression_" + string(ev.Action),
		Name:    ev.Entry.ProcessName,
		Success: &ok,
		Details: ev.Message,
	}
	if ev.Entry.Method != nil {
		entry.Method = string(ev.Entry.Kind())
		entry.Detail = ev.Entry.Detail()
	}
	a.log(entry)
}

// LogEvent records a general event.
func (a *Auditor) LogEvent(event, details string) {
	a.log(AuditEntry{
		Event:   event,
		Details: details,
	})
}

func (a *Auditor) log(entry AuditEntry) {
	if a.file == nil {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	entry.Timestamp = a.now()
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}

	a.file.Write(data)
	a.file.Write([]byte("\n"))
}
