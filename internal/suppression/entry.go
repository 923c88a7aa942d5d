package suppression

import (
	"encoding/json"
	"fmt"
	"time"
)

// Target identifies the process a suppression is for.
type Target struct {
	ProcessName string
	ExePath     string
}

// Entry is one applied suppression action.
type Entry struct {
	ID          int
	ProcessName string
	ExePath     string
	Method      Method
	Created     time.Time
	Active      bool
}

// Kind returns the entry's method kind.
func (e Entry) Kind() Kind {
	return e.Method.Kind()
}

// Detail returns the method-specific key.
func (e Entry) Detail() string {
	return e.Method.Detail()
}

// Restorable reports whether restore can run automatically.
func (e Entry) Restorable() bool {
	if m, ok := e.Method.(StartupMethod); ok {
		return m.Restorable
	}
	return true
}

type startupJSON struct {
	Location   string `json:"location"`
	Value      string `json:"value"`
	ValueType  string `json:"value_type,omitempty"`
	Restorable bool   `json:"restorable"`
}

type entryJSON struct {
	ID          int          `json:"id"`
	ProcessName string       `json:"process_name"`
	ExePath     string       `json:"exe_path"`
	Method      Kind         `json:"method"`
	Detail      string       `json:"detail"`
	Startup     *startupJSON `json:"startup,omitempty"`
	Created     time.Time    `json:"created"`
	Active      bool         `json:"active"`
}

// MarshalJSON writes the entry as a flat record with a method tag.
func (e Entry) MarshalJSON() ([]byte, error) {
	if e.Method == nil {
		return nil, fmt.Errorf("entry %d has no method", e.ID)
	}
	raw := entryJSON{
		ID:          e.ID,
		ProcessName: e.ProcessName,
		ExePath:     e.ExePath,
		Method:      e.Method.Kind(),
		Detail:      e.Method.Detail(),
		Created:     e.Created,
		Active:      e.Active,
	}
	if m, ok := e.Method.(StartupMethod); ok {
		raw.Startup = &startupJSON{
			Location:   m.Location,
			Value:      m.Value,
			ValueType:  m.ValueType,
			Restorable: m.Restorable,
		}
	}
	return json.Marshal(raw)
}

// UnmarshalJSON rebuilds the method variant from its tag.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw entryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var m Method
	switch raw.Method {
	case KindService:
		m = ServiceMethod{Service: raw.Detail}
	case KindTask:
		m = TaskMethod{Task: raw.Detail}
	case KindIFEO:
		m = IFEOMethod{Executable: raw.Detail}
	case KindStartup:
		sm := StartupMethod{Name: raw.Detail}
		if raw.Startup != nil {
			sm.Location = raw.Startup.Location
			sm.Value = raw.Startup.Value
			sm.ValueType = raw.Startup.ValueType
			sm.Restorable = raw.Startup.Restorable
		}
		m = sm
	default:
		return fmt.Errorf("entry %d: unknown method %q", raw.ID, raw.Method)
	}
	if raw.Detail == "" {
		return fmt.Errorf("entry %d: empty detail", raw.ID)
	}
	*e = Entry{
		ID:          raw.ID,
		ProcessName: raw.ProcessName,
		ExePath:     raw.ExePath,
		Method:      m,
		Created:     raw.Created,
		Active:      raw.Active,
	}
	return nil
}
