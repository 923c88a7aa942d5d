package suppression

import (
	"context"
	"fmt"

	"github.com/iamgilwell/procguard/internal/oserr"
	"github.com/iamgilwell/procguard/internal/sysexec"
)

// ServiceBackend disables and re-enables services. Disable on an already
// disabled service succeeds.
type ServiceBackend interface {
	Disable(ctx context.Context, service string) error
	Enable(ctx context.Context, service string) error
}

// StartupBackend removes and recreates autostart registrations. Remove
// captures the registration before deleting it; a failed capture still
// removes it and returns a method with Restorable false.
type StartupBackend interface {
	Remove(ctx context.Context, name string) (StartupMethod, error)
	Restore(ctx context.Context, m StartupMethod) error
}

// TaskBackend toggles scheduled tasks.
type TaskBackend interface {
	Disable(ctx context.Context, task string) error
	Enable(ctx context.Context, task string) error
}

// HookBackend installs and removes execution blocks by file name.
type HookBackend interface {
	Block(ctx context.Context, executable string) error
	Unblock(ctx context.Context, executable string) error
}

// Backends groups one implementation per method kind. The four do not
// interact.
type Backends struct {
	Services ServiceBackend
	Startup  StartupBackend
	Tasks    TaskBackend
	Hooks    HookBackend
}

// BackendConfig tunes the platform backends.
type BackendConfig struct {
	// HookDir receives execution-block shims on Linux.
	HookDir string
	// AutostartDirs are searched in order for startup entries on Linux.
	AutostartDirs []string
	// Runner executes management commands.
	Runner sysexec.Runner
}

func (c BackendConfig) runner() sysexec.Runner {
	if c.Runner == nil {
		return sysexec.ExecRunner{}
	}
	return c.Runner
}

// Unsupported is a backend set for platforms without any mechanism.
type Unsupported struct{}

func (Unsupported) Disable(context.Context, string) error { return unsupported() }
func (Unsupported) Enable(context.Context, string) error  { return unsupported() }
func (Unsupported) Block(context.Context, string) error   { return unsupported() }
func (Unsupported) Unblock(context.Context, string) error { return unsupported() }

func (Unsupported) Remove(context.Context, string) (StartupMethod, error) {
	return StartupMethod{}, unsupported()
}

func (Unsupported) Restore(context.Context, StartupMethod) error { return unsupported() }

func unsupported() error {
	return fmt.Errorf("suppression backend: %w", oserr.ErrUnsupported)
}
