//go:build unix

package process

import "golang.org/x/sys/unix"

// signalZero checks pid with signal 0. EPERM still means the pid exists.
func signalZero(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || err == unix.EPERM
}
