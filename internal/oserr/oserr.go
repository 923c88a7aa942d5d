// Package oserr defines the failure taxonomy shared by termination and
// suppression, and maps raw OS errors onto it.
package oserr

import (
	"errors"
	"io/fs"
	"strings"
	"syscall"

	"github.com/shirou/gopsutil/v3/process"
)

var (
	// ErrPermissionDenied is surfaced verbatim and never retried.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrNotFound means the target object (process, service, value, task) is gone.
	ErrNotFound = errors.New("not found")
	// ErrTimeout means a graceful stop did not complete in time.
	ErrTimeout = errors.New("timed out")
	// ErrBackendFailure is any other failed OS mutation.
	ErrBackendFailure = errors.New("backend failure")
	// ErrBlocked is returned when the safety gate refuses a request.
	ErrBlocked = errors.New("blocked by safety tier")
	// ErrNotRestorable marks a suppression whose original state was never captured.
	ErrNotRestorable = errors.New("not restorable automatically")
	// ErrUnsupported means the backend does not exist on this platform.
	ErrUnsupported = errors.New("unsupported on this platform")
)

// Classify wraps err with the matching taxonomy sentinel. Errors already
// carrying a sentinel are returned unchanged; nil stays nil.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{ErrPermissionDenied, ErrNotFound, ErrTimeout, ErrBackendFailure, ErrBlocked, ErrNotRestorable, ErrUnsupported} {
		if errors.Is(err, known) {
			return err
		}
	}
	switch {
	case isPermission(err):
		return wrap(ErrPermissionDenied, err)
	case isNotFound(err):
		return wrap(ErrNotFound, err)
	default:
		return wrap(ErrBackendFailure, err)
	}
}

// Kind returns the taxonomy sentinel err belongs to, or nil.
func Kind(err error) error {
	for _, known := range []error{ErrPermissionDenied, ErrNotFound, ErrTimeout, ErrBlocked, ErrNotRestorable, ErrUnsupported, ErrBackendFailure} {
		if errors.Is(err, known) {
			return known
		}
	}
	return nil
}

func isPermission(err error) bool {
	if errors.Is(err, fs.ErrPermission) || errors.Is(err, syscall.EPERM) || errors.Is(err, syscall.EACCES) {
		return true
	}
	if isPlatformPermission(err) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "access is denied") ||
		strings.Contains(msg, "access denied") ||
		strings.Contains(msg, "permission denied") ||
		strings.Contains(msg, "interactive authentication required")
}

func isNotFound(err error) bool {
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ESRCH) || errors.Is(err, process.ErrorProcessNotRunning) {
		return true
	}
	if isPlatformNotFound(err) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") ||
		strings.Contains(msg, "does not exist") ||
		strings.Contains(msg, "cannot find") ||
		strings.Contains(msg, "no such process") ||
		strings.Contains(msg, "not loaded")
}

type classified struct {
	kind error
	err  error
}

func (c *classified) Error() string { return c.err.Error() }

func (c *classified) Is(target error) bool { return target == c.kind }

func (c *classified) Unwrap() error { return c.err }

func wrap(kind, err error) error {
	return &classified{kind: kind, err: err}
}
