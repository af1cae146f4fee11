//go:build linux

package sampler

import (
	"os/exec"
	"syscall"
)

// setProcessGroup configures cmd to run in its own process group, and
// additionally arms Pdeathsig so the kernel delivers SIGKILL to the
// subprocess the moment this process dies for any reason — including an
// uncatchable SIGKILL to all-smi itself, which no in-process defer or
// panic hook could ever observe. This is the primary shutdown guarantee on
// Linux; the cross-platform watchdog process (see watchdog.go) is the
// fallback for platforms without Pdeathsig.
func setProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
	cmd.SysProcAttr.Pdeathsig = syscall.SIGKILL
}

// terminateGroup sends sig to the process group led by pid.
func terminateGroup(pid int, sig syscall.Signal) error {
	return syscall.Kill(-pid, sig)
}
