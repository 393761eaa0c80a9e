// Copyright 2025 Joseph Cumines
//
// Process group handling

//go:build unix

package executor

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// killProcessGroup starts c as the leader of a new process group and makes
// context cancellation SIGKILL the entire group, so shell mode commands take
// xcodebuild down with them.
func killProcessGroup(c *exec.Cmd) {
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	c.Cancel = func() error {
		err := syscall.Kill(-c.Process.Pid, syscall.SIGKILL)
		if errors.Is(err, syscall.ESRCH) {
			return os.ErrProcessDone
		}
		return err
	}
}
