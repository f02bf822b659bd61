//go:build windows

package mcp

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/windows"
)

// setProcessGroup starts cmd's subprocess in a new process group. Windows
// has no SIGKILL-to-group equivalent; killProcessGroup is a no-op and
// Close relies on killing the direct child only.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: windows.CREATE_NEW_PROCESS_GROUP}
}

func killProcessGroup(_ int) {}
