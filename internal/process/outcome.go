package process

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/iamgilwell/procguard/internal/oserr"
	"github.com/iamgilwell/procguard/internal/safety"
)

// State is a step of a termination request.
type State int

const (
	StateRequested State = iota
	StateGated
	StateSignaling
	StateAwaitingExit
	StateEscalated
	StateDone
	StateBlocked
	StateFailed
	// StateInProgress marks a request refused because the pid is already
	// being terminated by this controller.
	StateInProgress
)

var stateNames = [...]string{
	StateRequested:    "requested",
	StateGated:        "gated",
	StateSignaling:    "signaling",
	StateAwaitingExit: "awaiting_exit",
	StateEscalated:    "escalated",
	StateDone:         "done",
	StateBlocked:      "blocked",
	StateFailed:       "failed",
	StateInProgress:   "in_progress",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether no further transition follows s.
func (s State) Terminal() bool {
	switch s {
	case StateDone, StateBlocked, StateFailed, StateInProgress:
		return true
	}
	return false
}

// ChildFailure records a descendant that could not be terminated.
type ChildFailure struct {
	PID  int    `json:"pid"`
	Name string `json:"name"`
	Err  string `json:"error"`
}

// Outcome is the result of one termination request.
type Outcome struct {
	PID      int            `json:"pid"`
	Name     string         `json:"name"`
	Identity Identity       `json:"identity"`
	Safety   safety.Info    `json:"safety"`
	State    State          `json:"state"`
	Forced   bool           `json:"forced"`
	Override bool           `json:"override"`
	Tree     bool           `json:"tree"`
	Children int            `json:"children,omitempty"`
	Failures []ChildFailure `json:"failures,omitempty"`
	Success  bool           `json:"success"`
	Message  string         `json:"message"`
	Err      error          `json:"-"`
}

// Result returns the (success, message) pair shown to the operator.
func (o Outcome) Result() (bool, string) {
	return o.Success, o.Message
}

func (o *Outcome) done(msg string) {
	o.State = StateDone
	o.Success = true
	o.Message = msg
}

func (o *Outcome) fail(state State, err error, msg string) {
	o.State = state
	o.Success = false
	o.Err = err
	o.Message = msg
}

// failFor maps a signaling error onto the outcome. A gone process is success.
func (o *Outcome) failFor(err error, prefix string) {
	switch {
	case errors.Is(err, oserr.ErrNotFound):
		o.done(alreadyTerminated)
	case errors.Is(err, oserr.ErrPermissionDenied):
		o.fail(StateFailed, err, accessDenied())
	default:
		o.fail(StateFailed, err, fmt.Sprintf("%s: %v", prefix, err))
	}
}

const alreadyTerminated = "Process already terminated."

func accessDenied() string {
	if runtime.GOOS == "windows" {
		return "Access denied. Try running as Administrator."
	}
	return "Access denied. Try running as root."
}

func blockedMessage(name string, info safety.Info) string {
	return fmt.Sprintf("BLOCKED: %s is system critical. %s", name, info.Warning)
}
