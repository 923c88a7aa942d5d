//go:build !windows

package oserr

func isPlatformPermission(error) bool { return false }

func isPlatformNotFound(error) bool { return false }
