//go:build !linux && !windows

package monitor

// DefaultServiceEnumerator returns the enumerator for this platform.
func DefaultServiceEnumerator() ServiceEnumerator {
	return NoServices{}
}
