//go:build !windows

package supervisor

import (
	"os/exec"
	"syscall"
)

// detach starts the process in its own session so it survives the parent.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
