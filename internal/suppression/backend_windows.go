//go:build windows

package suppression

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sys/windows/registry"
	"golang.org/x/sys/windows/svc"
	"golang.org/x/sys/windows/svc/mgr"

	"github.com/iamgilwell/procguard/internal/oserr"
	"github.com/iamgilwell/procguard/internal/sysexec"
)

// DefaultHookDir is unused on Windows; blocks live in the registry.
const DefaultHookDir = ""

const (
	runKeyPath         = `Software\Microsoft\Windows\CurrentVersion\Run`
	runDisabledKeyPath = `Software\Microsoft\Windows\CurrentVersion\Run-Disabled`
	ifeoKeyPath        = `SOFTWARE\Microsoft\Windows NT\CurrentVersion\Image File Execution Options`
	ifeoDebugger       = `C:\Windows\System32\systray.exe`

	hiveCurrentUser  = "HKCU"
	hiveLocalMachine = "HKLM"

	valueTypeSZ       = "REG_SZ"
	valueTypeExpandSZ = "REG_EXPAND_SZ"
)

// DefaultBackends returns the Service Control Manager, Run keys, Task
// Scheduler and Image File Execution Options backends.
func DefaultBackends(cfg BackendConfig) Backends {
	return Backends{
		Services: SCMServices{},
		Startup:  RunKeys{},
		Tasks:    Schtasks{Runner: cfg.runner()},
		Hooks:    IFEOHooks{},
	}
}

// SCMServices changes service start types through the SCM.
type SCMServices struct{}

func (SCMServices) open(name string) (*mgr.Mgr, *mgr.Service, error) {
	m, err := mgr.Connect()
	if err != nil {
		return nil, nil, oserr.Classify(err)
	}
	s, err := m.OpenService(name)
	if err != nil {
		m.Disconnect()
		return nil, nil, oserr.Classify(fmt.Errorf("service %q: %w", name, err))
	}
	return m, s, nil
}

func setStartType(s *mgr.Service, startType uint32) error {
	cfg, err := s.Config()
	if err != nil {
		return oserr.Classify(err)
	}
	if cfg.StartType == startType {
		return nil
	}
	cfg.StartType = startType
	if err := s.UpdateConfig(cfg); err != nil {
		return oserr.Classify(err)
	}
	return nil
}

// Disable implements ServiceBackend.
func (b SCMServices) Disable(_ context.Context, name string) error {
	m, s, err := b.open(name)
	if err != nil {
		return err
	}
	defer m.Disconnect()
	defer s.Close()

	if err := setStartType(s, mgr.StartDisabled); err != nil {
		return err
	}
	// A stopped service rejects the stop control; the start type is what matters.
	_, _ = s.Control(svc.Stop)
	return nil
}

// Enable implements ServiceBackend. The service is not started.
func (b SCMServices) Enable(_ context.Context, name string) error {
	m, s, err := b.open(name)
	if err != nil {
		return err
	}
	defer m.Disconnect()
	defer s.Close()
	return setStartType(s, mgr.StartAutomatic)
}

// RunKeys removes values from the HKCU then HKLM Run keys, mirroring each
// removed value into a Run-Disabled key.
type RunKeys struct{}

func hiveKey(hive string) registry.Key {
	if hive == hiveLocalMachine {
		return registry.LOCAL_MACHINE
	}
	return registry.CURRENT_USER
}

// Remove implements StartupBackend.
func (RunKeys) Remove(_ context.Context, name string) (StartupMethod, error) {
	for _, hive := range []string{hiveCurrentUser, hiveLocalMachine} {
		k, err := registry.OpenKey(hiveKey(hive), runKeyPath, registry.QUERY_VALUE|registry.SET_VALUE)
		if err != nil {
			continue
		}
		m, found, err := removeRunValue(k, hive, name)
		k.Close()
		if !found {
			continue
		}
		if err != nil {
			return StartupMethod{}, err
		}
		if m.Restorable {
			mirrorRunValue(hive, m)
		}
		return m, nil
	}
	return StartupMethod{}, fmt.Errorf("startup entry %q: %w", name, oserr.ErrNotFound)
}

func removeRunValue(k registry.Key, hive, name string) (StartupMethod, bool, error) {
	m := StartupMethod{Name: name, Location: hive}
	val, valType, err := k.GetStringValue(name)
	switch {
	case errors.Is(err, registry.ErrNotExist):
		return m, false, nil
	case err == nil:
		m.Value = val
		m.Restorable = true
		m.ValueType = valueTypeSZ
		if valType == registry.EXPAND_SZ {
			m.ValueType = valueTypeExpandSZ
		}
	}
	if err := k.DeleteValue(name); err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return m, false, nil
		}
		return m, true, oserr.Classify(err)
	}
	return m, true, nil
}

func mirrorRunValue(hive string, m StartupMethod) {
	k, _, err := registry.CreateKey(hiveKey(hive), runDisabledKeyPath, registry.SET_VALUE)
	if err != nil {
		return
	}
	defer k.Close()
	_ = k.SetStringValue(m.Name, m.Value)
}

// Restore implements StartupBackend, writing to the hive the value came from.
func (RunKeys) Restore(_ context.Context, m StartupMethod) error {
	k, err := registry.OpenKey(hiveKey(m.Location), runKeyPath, registry.SET_VALUE)
	if err != nil {
		return oserr.Classify(err)
	}
	defer k.Close()

	if m.ValueType == valueTypeExpandSZ {
		err = k.SetExpandStringValue(m.Name, m.Value)
	} else {
		err = k.SetStringValue(m.Name, m.Value)
	}
	if err != nil {
		return oserr.Classify(err)
	}
	if dk, err := registry.OpenKey(hiveKey(m.Location), runDisabledKeyPath, registry.SET_VALUE); err == nil {
		_ = dk.DeleteValue(m.Name)
		dk.Close()
	}
	return nil
}

// Schtasks toggles tasks with schtasks.exe.
type Schtasks struct {
	Runner sysexec.Runner
}

// Disable implements TaskBackend.
func (s Schtasks) Disable(ctx context.Context, task string) error {
	_, err := s.Runner.Run(ctx, "schtasks", "/Change", "/TN", task, "/Disable")
	return oserr.Classify(err)
}

// Enable implements TaskBackend.
func (s Schtasks) Enable(ctx context.Context, task string) error {
	_, err := s.Runner.Run(ctx, "schtasks", "/Change", "/TN", task, "/Enable")
	return oserr.Classify(err)
}

// IFEOHooks sets a Debugger redirect under Image File Execution Options,
// which stops the executable from launching under any path.
type IFEOHooks struct{}

func ifeoKey(executable string) string {
	return ifeoKeyPath + `\` + strings.TrimSpace(executable)
}

// Block implements HookBackend.
func (IFEOHooks) Block(_ context.Context, executable string) error {
	k, _, err := registry.CreateKey(registry.LOCAL_MACHINE, ifeoKey(executable), registry.SET_VALUE)
	if err != nil {
		return oserr.Classify(err)
	}
	defer k.Close()
	return oserr.Classify(k.SetStringValue("Debugger", ifeoDebugger))
}

// Unblock implements HookBackend. A missing Debugger value is already unblocked.
func (IFEOHooks) Unblock(_ context.Context, executable string) error {
	k, err := registry.OpenKey(registry.LOCAL_MACHINE, ifeoKey(executable), registry.SET_VALUE)
	if err != nil {
		return oserr.Classify(err)
	}
	defer k.Close()
	if err := k.DeleteValue("Debugger"); err != nil && !errors.Is(err, registry.ErrNotExist) {
		return oserr.Classify(err)
	}
	return nil
}
