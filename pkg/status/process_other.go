//go:build !unix

package status

import "os"

// Alive reports whether a process with the given pid exists.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	_ = p.Release()
	return true
}

// Signal terminates the process. Without POSIX signals there is no graceful
// variant, so both modes kill.
func Signal(pid int, _ bool) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}
