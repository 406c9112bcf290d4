//go:build windows

package process

import "syscall"

const (
	processTerminate        = 0x0001
	processQueryInformation = 0x0400
)

// signalGroup terminates pid. Windows has no graceful signal for console-less
// children, so SIGTERM and SIGKILL both map to TerminateProcess.
func signalGroup(pid int, _ syscall.Signal) error {
	if pid <= 0 {
		return nil
	}
	h, err := syscall.OpenProcess(processTerminate, false, uint32(pid))
	if err != nil {
		// already gone
		return nil
	}
	defer func() { _ = syscall.CloseHandle(h) }()
	return syscall.TerminateProcess(h, 1)
}

func processExists(pid int) bool {
	h, err := syscall.OpenProcess(processQueryInformation, false, uint32(pid))
	if err != nil {
		return false
	}
	_ = syscall.CloseHandle(h)
	return true
}
