//go:build windows

package oserr

import (
	"errors"

	"golang.org/x/sys/windows"
)

func isPlatformPermission(err error) bool {
	return errors.Is(err, windows.ERROR_ACCESS_DENIED)
}

func isPlatformNotFound(err error) bool {
	return errors.Is(err, windows.ERROR_SERVICE_DOES_NOT_EXIST) ||
		errors.Is(err, windows.ERROR_FILE_NOT_FOUND) ||
		errors.Is(err, windows.ERROR_INVALID_PARAMETER)
}
