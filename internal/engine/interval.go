package engine

import (
	"runtime"
	"time"
)

// AdaptiveRemoteInterval selects the remote-mode collection interval from
// the current host count (spec 4.7: "nodes <=10 -> 2s, <=50 -> 3s, <=100
// -> 4s, >100 -> 6s").
func AdaptiveRemoteInterval(hostCount int) time.Duration {
	switch {
	case hostCount <= 10:
		return 2 * time.Second
	case hostCount <= 50:
		return 3 * time.Second
	case hostCount <= 100:
		return 4 * time.Second
	default:
		return 6 * time.Second
	}
}

// DefaultLocalInterval selects the local-mode collection interval (spec
// 4.7: "for local mode: 1s on Apple, 2s elsewhere").
func DefaultLocalInterval() time.Duration {
	if runtime.GOOS == "darwin" {
		return 1 * time.Second
	}
	return 2 * time.Second
}
