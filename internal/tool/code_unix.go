//go:build unix

package tool

import (
	"os/exec"
	"syscall"
)

// killProcessGroup runs the interpreter as a process group leader so that a timeout
// kills everything the snippet started, not just the interpreter.
func killProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
