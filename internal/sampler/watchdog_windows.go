//go:build windows

package sampler

import "syscall"

// RunWatchdogLoop is a best-effort analog of the Unix watchdog: Windows has
// no signal-0 liveness probe, so it opens a handle to the parent process
// and waits on it becoming signaled (terminated).
func RunWatchdogLoop(parentPID, targetPID int) {
	h, err := syscall.OpenProcess(syscall.SYNCHRONIZE, false, uint32(parentPID))
	if err != nil {
		return
	}
	defer syscall.CloseHandle(h)

	event, _ := syscall.WaitForSingleObject(h, syscall.INFINITE)
	if event == syscall.WAIT_OBJECT_0 {
		_ = terminateGroup(targetPID, syscall.Signal(0))
	}
}
