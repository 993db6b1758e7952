//go:build unix

package runner

import (
	"os/exec"
	"syscall"
)

// isolateProcessGroup puts the child in its own group so a timeout kills
// everything it spawned, not just the interpreter
func isolateProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
