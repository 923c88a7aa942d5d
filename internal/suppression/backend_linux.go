//go:build linux

package suppression

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/iamgilwell/procguard/internal/oserr"
	"github.com/iamgilwell/procguard/internal/sysexec"
)

// DefaultHookDir precedes the system binary directories on a standard PATH.
const DefaultHookDir = "/usr/local/sbin"

// hookMarker identifies shims this program wrote.
const hookMarker = "# procguard execution block"

// DefaultBackends returns systemd units for services and tasks (timers),
// XDG autostart entries for startup, and PATH shims for execution blocks.
func DefaultBackends(cfg BackendConfig) Backends {
	runner := cfg.runner()
	dirs := cfg.AutostartDirs
	if len(dirs) == 0 {
		dirs = defaultAutostartDirs()
	}
	hookDir := cfg.HookDir
	if hookDir == "" {
		hookDir = DefaultHookDir
	}
	return Backends{
		Services: SystemdUnits{Runner: runner, Suffix: ".service"},
		Startup:  XDGAutostart{Dirs: dirs},
		Tasks:    SystemdUnits{Runner: runner, Suffix: ".timer", StartOnEnable: true},
		Hooks:    PathShims{Dir: hookDir},
	}
}

func defaultAutostartDirs() []string {
	var dirs []string
	if cfg, err := os.UserConfigDir(); err == nil {
		dirs = append(dirs, filepath.Join(cfg, "autostart"))
	}
	return append(dirs, "/etc/xdg/autostart")
}

// SystemdUnits disables and enables systemd units of one type.
type SystemdUnits struct {
	Runner sysexec.Runner
	// Suffix is appended to bare names: ".service" or ".timer".
	Suffix string
	// StartOnEnable restarts the unit on enable. Timers need it to resume
	// scheduling; services are left stopped.
	StartOnEnable bool
}

func (s SystemdUnits) unit(name string) string {
	if strings.Contains(name, ".") {
		return name
	}
	return name + s.Suffix
}

// Disable implements ServiceBackend and TaskBackend.
func (s SystemdUnits) Disable(ctx context.Context, name string) error {
	unit := s.unit(name)
	if _, err := s.Runner.Run(ctx, "systemctl", "disable", unit); err != nil {
		return oserr.Classify(err)
	}
	// Stopping is best effort; the unit no longer starts at boot either way.
	_, _ = s.Runner.Run(ctx, "systemctl", "stop", unit)
	return nil
}

// Enable implements ServiceBackend and TaskBackend.
func (s SystemdUnits) Enable(ctx context.Context, name string) error {
	unit := s.unit(name)
	args := []string{"enable", unit}
	if s.StartOnEnable {
		args = []string{"enable", "--now", unit}
	}
	if _, err := s.Runner.Run(ctx, "systemctl", args...); err != nil {
		return oserr.Classify(err)
	}
	return nil
}

// XDGAutostart manages .desktop files in autostart directories. Removed
// files are mirrored into a sibling "autostart-disabled" directory.
type XDGAutostart struct {
	Dirs []string
}

func desktopName(name string) string {
	if strings.HasSuffix(name, ".desktop") {
		return name
	}
	return name + ".desktop"
}

// Remove implements StartupBackend.
func (x XDGAutostart) Remove(_ context.Context, name string) (StartupMethod, error) {
	file := desktopName(name)
	for _, dir := range x.Dirs {
		path := filepath.Join(dir, file)
		if _, err := os.Lstat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return StartupMethod{}, oserr.Classify(err)
		}

		m := StartupMethod{Name: name, Location: dir}
		if data, err := os.ReadFile(path); err == nil {
			m.Value = string(data)
			m.Restorable = true
		}
		if err := os.Remove(path); err != nil {
			return StartupMethod{}, oserr.Classify(err)
		}
		if m.Restorable {
			mirror := filepath.Join(filepath.Dir(dir), filepath.Base(dir)+"-disabled")
			if err := os.MkdirAll(mirror, 0o755); err == nil {
				_ = os.WriteFile(filepath.Join(mirror, file), []byte(m.Value), 0o644)
			}
		}
		return m, nil
	}
	return StartupMethod{}, fmt.Errorf("startup entry %q: %w", name, oserr.ErrNotFound)
}

// Restore implements StartupBackend.
func (x XDGAutostart) Restore(_ context.Context, m StartupMethod) error {
	if m.Location == "" {
		return fmt.Errorf("startup entry %q has no location: %w", m.Name, oserr.ErrNotRestorable)
	}
	file := desktopName(m.Name)
	if err := os.MkdirAll(m.Location, 0o755); err != nil {
		return oserr.Classify(err)
	}
	if err := os.WriteFile(filepath.Join(m.Location, file), []byte(m.Value), 0o644); err != nil {
		return oserr.Classify(err)
	}
	mirror := filepath.Join(filepath.Dir(m.Location), filepath.Base(m.Location)+"-disabled", file)
	_ = os.Remove(mirror)
	return nil
}

// PathShims blocks an executable name by placing a refusing script of the
// same name in a directory that precedes the system paths.
type PathShims struct {
	Dir string
}

func (p PathShims) shimPath(executable string) (string, error) {
	base := filepath.Base(strings.TrimSpace(executable))
	if base == "" || base == "." || base == string(filepath.Separator) {
		return "", fmt.Errorf("invalid executable name %q", executable)
	}
	return filepath.Join(p.Dir, base), nil
}

func shimScript(name string) []byte {
	return []byte(fmt.Sprintf("#!/bin/sh\n%s\necho \"%s is blocked by procguard\" >&2\nexit 126\n", hookMarker, name))
}

// Block implements HookBackend.
func (p PathShims) Block(_ context.Context, executable string) error {
	path, err := p.shimPath(executable)
	if err != nil {
		return err
	}
	if data, err := os.ReadFile(path); err == nil {
		if bytes.Contains(data, []byte(hookMarker)) {
			return nil
		}
		return fmt.Errorf("%s exists and was not created by procguard: %w", path, oserr.ErrBackendFailure)
	}
	if err := os.MkdirAll(p.Dir, 0o755); err != nil {
		return oserr.Classify(err)
	}
	if err := os.WriteFile(path, shimScript(filepath.Base(path)), 0o755); err != nil {
		return oserr.Classify(err)
	}
	return nil
}

// Unblock implements HookBackend. A missing shim is already unblocked.
func (p PathShims) Unblock(_ context.Context, executable string) error {
	path, err := p.shimPath(executable)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return oserr.Classify(err)
	}
	if !bytes.Contains(data, []byte(hookMarker)) {
		return fmt.Errorf("%s was not created by procguard: %w", path, oserr.ErrBackendFailure)
	}
	if err := os.Remove(path); err != nil {
		return oserr.Classify(err)
	}
	return nil
}
