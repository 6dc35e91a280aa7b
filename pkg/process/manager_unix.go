//go:build !windows

package process

import "syscall"

// processGroupAttr puts the child in its own process group so
// killProcessGroup can reach grandchildren a shell spawned (e.g. a
// pipeline's right-hand side) without needing their individual PIDs.
func processGroupAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

// killProcessGroup sends SIGKILL to the entire process group rooted at
// pid. Best-effort: the group may already be empty.
func killProcessGroup(pid int) {
	_ = syscall.Kill(-pid, syscall.SIGKILL)
}
