//go:build !linux && !windows

package suppression

// DefaultHookDir is unused on this platform.
const DefaultHookDir = ""

// DefaultBackends returns unsupported backends on this platform.
func DefaultBackends(BackendConfig) Backends {
	return Backends{
		Services: Unsupported{},
		Startup:  Unsupported{},
		Tasks:    Unsupported{},
		Hooks:    Unsupported{},
	}
}
