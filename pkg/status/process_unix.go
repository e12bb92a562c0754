//go:build unix

package status

import (
	"errors"
	"syscall"
)

// Alive reports whether a process with the given pid exists.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}

// Signal asks the process to terminate: SIGTERM, or SIGKILL when force is set.
func Signal(pid int, force bool) error {
	if pid <= 0 {
		return syscall.ESRCH
	}
	sig := syscall.SIGTERM
	if force {
		sig = syscall.SIGKILL
	}
	return syscall.Kill(pid, sig)
}
