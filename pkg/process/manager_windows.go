//go:build windows

package process

import "syscall"

// processGroupAttr is a no-op on windows; process-group kill falls back
// to killing the single tracked PID (spec.md §4.3 "platform permitting").
func processGroupAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{}
}

func killProcessGroup(pid int) {
	// Best-effort single-process fallback; Terminate's earlier Kill()
	// step already attempted this PID.
}
