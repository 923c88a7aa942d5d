package suppression

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/iamgilwell/procguard/internal/oserr"
)

// Action names an engine operation in events.
type Action string

const (
	ActionApply   Action = "apply"
	ActionRestore Action = "restore"
	ActionForget  Action = "forget"
)

// Event describes one finished engine operation.
type Event struct {
	Action  Action
	Entry   Entry
	Success bool
	Message string
	Err     error
}

// Result is the outcome of restoring one entry.
type Result struct {
	Entry   Entry
	Success bool
	Message string
	Err     error
}

// Engine applies and reverses suppressions. Each apply, restore or forget
// holds the engine lock through the OS call and the ledger write.
type Engine struct {
	backends  Backends
	now       func() time.Time
	observers []func(Event)

	mu     sync.Mutex
	ledger *Ledger
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// WithObserver registers fn to receive every event.
func WithObserver(fn func(Event)) EngineOption {
	return func(e *Engine) { e.observers = append(e.observers, fn) }
}

// NewEngine creates an engine over ledger. Missing backends are unsupported.
func NewEngine(ledger *Ledger, backends Backends, opts ...EngineOption) *Engine {
	if backends.Services == nil {
		backends.Services = Unsupported{}
	}
	if backends.Startup == nil {
		backends.Startup = Unsupported{}
	}
	if backends.Tasks == nil {
		backends.Tasks = Unsupported{}
	}
	if backends.Hooks == nil {
		backends.Hooks = Unsupported{}
	}
	if ledger == nil {
		ledger = &Ledger{nextID: 1}
	}
	e := &Engine{backends: backends, ledger: ledger, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ApplyService disables service and stops it.
func (e *Engine) ApplyService(ctx context.Context, target Target, service string) (Entry, error) {
	service = strings.TrimSpace(service)
	return e.apply(target, ServiceMethod{Service: service}, func() (Method, error) {
		if err := e.backends.Services.Disable(ctx, service); err != nil {
			return nil, err
		}
		return ServiceMethod{Service: service}, nil
	})
}

// ApplyStartup removes the autostart registration name. An entry that is
// already suppressed is returned as is.
func (e *Engine) ApplyStartup(ctx context.Context, target Target, name string) (Entry, error) {
	name = strings.TrimSpace(name)
	return e.apply(target, StartupMethod{Name: name}, func() (Method, error) {
		m, err := e.backends.Startup.Remove(ctx, name)
		if err != nil {
			return nil, err
		}
		m.Name = name
		return m, nil
	})
}

// ApplyTask disables the scheduled task.
func (e *Engine) ApplyTask(ctx context.Context, target Target, task string) (Entry, error) {
	task = strings.TrimSpace(task)
	return e.apply(target, TaskMethod{Task: task}, func() (Method, error) {
		if err := e.backends.Tasks.Disable(ctx, task); err != nil {
			return nil, err
		}
		return TaskMethod{Task: task}, nil
	})
}

// ApplyIFEO blocks executable from launching.
func (e *Engine) ApplyIFEO(ctx context.Context, target Target, executable string) (Entry, error) {
	executable = strings.TrimSpace(executable)
	return e.apply(target, IFEOMethod{Executable: executable}, func() (Method, error) {
		if err := e.backends.Hooks.Block(ctx, executable); err != nil {
			return nil, err
		}
		return IFEOMethod{Executable: executable}, nil
	})
}

// Apply dispatches on kind.
func (e *Engine) Apply(ctx context.Context, kind Kind, target Target, detail string) (Entry, error) {
	switch kind {
	case KindService:
		return e.ApplyService(ctx, target, detail)
	case KindStartup:
		return e.ApplyStartup(ctx, target, detail)
	case KindTask:
		return e.ApplyTask(ctx, target, detail)
	case KindIFEO:
		return e.ApplyIFEO(ctx, target, detail)
	}
	return Entry{}, fmt.Errorf("unknown suppression method %q", kind)
}

// apply runs do and records an entry only after it succeeded.
func (e *Engine) apply(target Target, want Method, do func() (Method, error)) (Entry, error) {
	if want.Detail() == "" {
		return Entry{}, fmt.Errorf("%s suppression needs a name", want.Kind())
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// A removed startup registration cannot be removed again.
	if want.Kind() == KindStartup {
		if existing, ok := e.ledger.Find(KindStartup, want.Detail()); ok {
			e.emit(Event{Action: ActionApply, Entry: existing, Success: true, Message: existing.Method.AppliedMessage()})
			return existing, nil
		}
	}

	applied, err := do()
	if err != nil {
		err = oserr.Classify(err)
		entry := Entry{ProcessName: target.ProcessName, ExePath: target.ExePath, Method: want}
		e.emit(Event{Action: ActionApply, Entry: entry, Message: failureMessage(err), Err: err})
		return Entry{}, fmt.Errorf("%s suppression of %q: %w", want.Kind(), want.Detail(), err)
	}

	if existing, ok := e.ledger.Find(applied.Kind(), applied.Detail()); ok {
		e.emit(Event{Action: ActionApply, Entry: existing, Success: true, Message: applied.AppliedMessage()})
		return existing, nil
	}

	processName := target.ProcessName
	if processName == "" {
		processName = applied.Detail()
	}
	entry, err := e.ledger.add(Entry{
		ProcessName: processName,
		ExePath:     target.ExePath,
		Method:      applied,
		Created:     e.now(),
		Active:      true,
	})
	if err != nil {
		err = fmt.Errorf("%s applied but not recorded: %w", applied.AppliedMessage(), err)
		e.emit(Event{Action: ActionApply, Entry: entry, Message: err.Error(), Err: err})
		return Entry{}, err
	}
	e.emit(Event{Action: ActionApply, Entry: entry, Success: true, Message: applied.AppliedMessage()})
	return entry, nil
}

// Restore reverses the entry with id and removes it from the ledger. On
// failure the entry is kept.
func (e *Engine) Restore(ctx context.Context, id int) (Entry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.restoreLocked(ctx, id)
}

func (e *Engine) restoreLocked(ctx context.Context, id int) (Entry, error) {
	entry, ok := e.ledger.Get(id)
	if !ok {
		return Entry{}, fmt.Errorf("suppression entry %d: %w", id, oserr.ErrNotFound)
	}

	if err := e.reverse(ctx, entry.Method); err != nil {
		err = oserr.Classify(err)
		e.emit(Event{Action: ActionRestore, Entry: entry, Message: failureMessage(err), Err: err})
		return entry, fmt.Errorf("restoring %s %q: %w", entry.Kind(), entry.Detail(), err)
	}

	if err := e.ledger.remove(id); err != nil {
		err = fmt.Errorf("%s restored but ledger not updated: %w", entry.Detail(), err)
		e.emit(Event{Action: ActionRestore, Entry: entry, Message: err.Error(), Err: err})
		return entry, err
	}
	e.emit(Event{Action: ActionRestore, Entry: entry, Success: true, Message: entry.Method.RestoredMessage()})
	return entry, nil
}

// reverse is the single restore operation matching each method.
func (e *Engine) reverse(ctx context.Context, m Method) error {
	switch m := m.(type) {
	case ServiceMethod:
		return e.backends.Services.Enable(ctx, m.Service)
	case StartupMethod:
		if !m.Restorable {
			return fmt.Errorf("startup entry %q: %w", m.Name, oserr.ErrNotRestorable)
		}
		return e.backends.Startup.Restore(ctx, m)
	case TaskMethod:
		return e.backends.Tasks.Enable(ctx, m.Task)
	case IFEOMethod:
		return e.backends.Hooks.Unblock(ctx, m.Executable)
	default:
		return fmt.Errorf("method %T: %w", m, oserr.ErrUnsupported)
	}
}

// RestoreAll restores every active entry, newest first, and keeps going
// past failures.
func (e *Engine) RestoreAll(ctx context.Context) []Result {
	e.mu.Lock()
	active := e.ledger.Active()
	e.mu.Unlock()

	results := make([]Result, 0, len(active))
	for _, entry := range active {
		e.mu.Lock()
		if _, ok := e.ledger.Get(entry.ID); !ok {
			// Restored or forgotten since the snapshot.
			e.mu.Unlock()
			continue
		}
		restored, err := e.restoreLocked(ctx, entry.ID)
		e.mu.Unlock()

		if restored.Method == nil {
			restored = entry
		}
		r := Result{Entry: restored, Success: err == nil, Err: err}
		if err != nil {
			r.Message = failureMessage(err)
		} else {
			r.Message = restored.Method.RestoredMessage()
		}
		results = append(results, r)
	}
	return results
}

// Forget drops an entry without touching the OS.
func (e *Engine) Forget(id int) (Entry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry, ok := e.ledger.Get(id)
	if !ok {
		return Entry{}, fmt.Errorf("suppression entry %d: %w", id, oserr.ErrNotFound)
	}
	if err := e.ledger.remove(id); err != nil {
		return entry, err
	}
	e.emit(Event{Action: ActionForget, Entry: entry, Success: true,
		Message: fmt.Sprintf("Forgot %s suppression of '%s'.", entry.Kind(), entry.Detail())})
	return entry, nil
}

// Entries returns the ledger contents in creation order.
func (e *Engine) Entries() []Entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Entries()
}

// Entry returns the ledger entry with id.
func (e *Engine) Entry(id int) (Entry, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Get(id)
}

// ActiveCount returns the number of active entries.
func (e *Engine) ActiveCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.ledger.Active())
}

func (e *Engine) emit(ev Event) {
	for _, fn := range e.observers {
		fn(ev)
	}
}

// failureMessage renders an error for direct display.
func failureMessage(err error) string {
	switch {
	case errors.Is(err, oserr.ErrPermissionDenied):
		return "Access denied. Run as Administrator or root."
	case errors.Is(err, oserr.ErrNotRestorable):
		return "Cannot restore automatically: the original value was not captured."
	case errors.Is(err, oserr.ErrUnsupported):
		return "Not supported on this platform."
	}
	return "Failed: " + err.Error()
}

// Message renders err for direct display.
func Message(err error) string {
	if err == nil {
		return ""
	}
	return failureMessage(err)
}
