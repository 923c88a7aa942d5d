//go:build !unix

package process

func signalZero(pid int) bool {
	return pid >= 0
}
