package orchestrator

import (
	"errors"
	"syscall"
)

// processAlive asks the OS whether pid still exists. Signal 0 probes without
// delivering anything; EPERM means the process is there but owned by someone
// else.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}

// terminate forcibly kills pid. No graceful shutdown is attempted; the
// engine's plan orders may survive at the venue and are reconciled on its
// next run.
func terminate(pid int) error {
	return syscall.Kill(pid, syscall.SIGKILL)
}
