//go:build !windows

package sampler

import (
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// watchdogPollInterval is how often the detached watchdog checks whether
// its original parent (the all-smi process that spawned it) is still
// alive.
const watchdogPollInterval = 500 * time.Millisecond

// RunWatchdogLoop polls parentPID for liveness (via a signal-0 kill, which
// performs no action but reports ESRCH once the pid is gone) and, once the
// parent has died, force-kills the process group led by targetPID.
//
// This is the out-of-band half of the shutdown story described in the
// sampler manager design: a sampler subprocess may ignore stdin EOF, and a
// parent killed by SIGKILL never runs its own deferred cleanup, so a
// separate process — not a goroutine, which would die with the rest of the
// tree — has to be the one watching. The manager launches this loop as a
// detached child (see Manager.spawnWatchdog); once reparented to init it keeps
// running after all-smi itself is gone, and exits immediately once it has
// done its one job.
//
// It blocks until the parent is observed dead, then returns after issuing
// the kill.
func RunWatchdogLoop(parentPID, targetPID int) {
	for {
		if err := unix.Kill(parentPID, 0); err != nil {
			_ = terminateGroup(targetPID, syscall.SIGKILL)
			return
		}
		time.Sleep(watchdogPollInterval)
	}
}
