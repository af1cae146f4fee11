//go:build !windows && !linux

package sampler

import (
	"os/exec"
	"syscall"
)

// setProcessGroup configures cmd to run in its own process group so the
// manager can signal the whole group (the tool plus any children it
// spawns) rather than just the immediate child pid.
func setProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// terminateGroup sends sig to the process group led by pid.
func terminateGroup(pid int, sig syscall.Signal) error {
	return syscall.Kill(-pid, sig)
}
