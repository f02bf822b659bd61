//go:build !windows

package mcp

import (
	"os/exec"
	"syscall"
)

// setProcessGroup puts cmd's subprocess in its own process group so
// killProcessGroup can reap any children it spawns (some MCP stdio
// servers are thin wrappers — npx, uvx — that fork the real server).
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killProcessGroup sends SIGKILL to every process in pid's group.
func killProcessGroup(pid int) {
	_ = syscall.Kill(-pid, syscall.SIGKILL)
}
