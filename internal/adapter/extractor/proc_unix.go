//go:build unix

package extractor

import (
	"os/exec"
	"syscall"
)

// configureProcess starts cmd as a process group leader and kills the whole
// group when its context is done.
func configureProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = waitDelay
}
