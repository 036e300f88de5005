//go:build windows

package supervisor

import (
	"os/exec"
	"syscall"
)

const detachedProcess = 0x00000008

// detach starts the process without a console in a new process group so it
// survives the parent.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: detachedProcess | syscall.CREATE_NEW_PROCESS_GROUP}
}
