//go:build unix

package app

import (
	"os/exec"
	"syscall"
)

// detach puts the child in a new session so terminal signals sent to the
// launching command do not reach it.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
