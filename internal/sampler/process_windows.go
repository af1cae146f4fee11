//go:build windows

package sampler

import (
	"os/exec"
	"syscall"
)

// Windows has no POSIX process groups; CREATE_NEW_PROCESS_GROUP is the
// closest analog and lets us send CTRL_BREAK_EVENT to the whole tree.
func setProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.CreationFlags = syscall.CREATE_NEW_PROCESS_GROUP
}

func terminateGroup(pid int, _ syscall.Signal) error {
	p, err := syscall.OpenProcess(syscall.PROCESS_TERMINATE, false, uint32(pid))
	if err != nil {
		return err
	}
	defer syscall.CloseHandle(p)
	return syscall.TerminateProcess(p, 1)
}
