//go:build !windows

package process

import "syscall"

// signalGroup delivers sig to the process group led by pid.
func signalGroup(pid int, sig syscall.Signal) error {
	if pid <= 0 {
		return nil
	}
	return syscall.Kill(-pid, sig)
}

func processExists(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}
