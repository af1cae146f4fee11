// Process enumerator — gathers per-process resource usage (spec section
// 3's ProcessSample and the `processes` config flag in section 6.3).
// Adapted from the teacher's process collector's gopsutil enumeration and
// status normalization table; generalized from "top N by CPU" to "all
// processes". No accelerator-device attribution is filled in (DeviceUUID
// and the GPU fields stay zero), and the full list is returned uncapped.
package collector

import (
	"context"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/zeroday0619/all-smi/internal/model"
)

// normalizedStatuses maps raw gopsutil status strings to a consistent set
// of display values used across all platforms.
var normalizedStatuses = map[string]string{
	"running": "running", "sleeping": "sleeping", "idle": "idle",
	"stopped": "stopped", "zombie": "zombie", "wait": "sleeping",
	"lock": "sleeping", "sleep": "sleeping", "disk-sleep": "sleeping",
	"tracing-stop": "stopped", "dead": "zombie", "wake-kill": "sleeping",
	"waking": "running", "parked": "idle", "idle-interrupt": "idle",
	"suspended": "stopped", "uninterruptible-sleep": "sleeping",
}

// normalizeStatus maps a raw gopsutil status string to a consistent
// display value, inferring from CPU activity when the status is empty
// (common on Windows).
func normalizeStatus(raw string, cpuPct float64) string {
	if raw != "" {
		key := strings.ToLower(strings.TrimSpace(raw))
		if mapped, ok := normalizedStatuses[key]; ok {
			return mapped
		}
		return key
	}
	if cpuPct > 0 {
		return "running"
	}
	return "idle"
}

// ProcessReader implements contracts.ProcessEnumerator.
type ProcessReader struct {
	logger *zap.Logger
}

// NewProcessReader creates the process enumerator.
func NewProcessReader(logger *zap.Logger) *ProcessReader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProcessReader{logger: logger}
}

// Processes lists every visible process. Individual process errors (the
// process exited mid-enumeration, or access was denied) are skipped rather
// than failing the whole call, matching the teacher's tolerance for
// partial process-table visibility.
func (r *ProcessReader) Processes(ctx context.Context) ([]model.ProcessSample, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]model.ProcessSample, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		cpuPct, _ := p.CPUPercentWithContext(ctx)
		memPct, _ := p.MemoryPercentWithContext(ctx)
		statuses, _ := p.StatusWithContext(ctx)
		cmdline, _ := p.CmdlineWithContext(ctx)
		username, _ := p.UsernameWithContext(ctx)
		ppid, _ := p.PpidWithContext(ctx)
		numThreads, _ := p.NumThreadsWithContext(ctx)
		nice, _ := p.NiceWithContext(ctx)
		createdMs, _ := p.CreateTimeWithContext(ctx)

		var rssBytes, vmsBytes uint64
		if mi, err := p.MemoryInfoWithContext(ctx); err == nil && mi != nil {
			rssBytes = mi.RSS
			vmsBytes = mi.VMS
		}

		var cpuTimeSeconds float64
		if times, err := p.TimesWithContext(ctx); err == nil && times != nil {
			cpuTimeSeconds = times.User + times.System
		}

		raw := ""
		if len(statuses) > 0 {
			raw = statuses[0]
		}

		out = append(out, model.ProcessSample{
			PID:            p.Pid,
			PPID:           ppid,
			Name:           name,
			Command:        cmdline,
			User:           username,
			State:          normalizeStatus(raw, cpuPct),
			Threads:        int(numThreads),
			Nice:           int(nice),
			CPUPct:         ClampPct(cpuPct),
			MemPct:         float64(memPct),
			RSSBytes:       rssBytes,
			VMSBytes:       vmsBytes,
			CPUTimeSeconds: cpuTimeSeconds,
			StartTime:      time.UnixMilli(createdMs),
		})
	}
	return out, nil
}

func (r *ProcessReader) IsAvailable() bool { return true }
