//go:build linux

package collector

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"context"

	"go.uber.org/zap"

	"github.com/zeroday0619/all-smi/internal/model"
)

// LinuxCPUReader reads /proc/stat, /proc/cpuinfo, and cgroup cpuset limits
// (spec section 4.2). It keeps the previous /proc/stat snapshot so it can
// report a monotonic per-tick delta rather than a cumulative counter; if
// the clock or the counters regress the prior snapshot is discarded and a
// zero utilization is reported for that tick (spec section 4.2's explicit
// edge case).
type LinuxCPUReader struct {
	logger *zap.Logger

	mu       sync.Mutex
	prevCPU  map[int]jiffies
	prevTime time.Time
	modelCache string
}

type jiffies struct {
	idle  uint64
	total uint64
}

// NewLinuxCPUReader creates the Linux CPU reader.
func NewLinuxCPUReader(logger *zap.Logger) *LinuxCPUReader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LinuxCPUReader{logger: logger, prevCPU: make(map[int]jiffies)}
}

func (r *LinuxCPUReader) Name() string { return "cpu-linux" }

func (r *LinuxCPUReader) Sample(ctx context.Context) ([]model.DeviceSample, error) {
	_ = ctx
	statLines, err := readLines("/proc/stat")
	if err != nil {
		return nil, err
	}

	allowed := cpusetAllowed()

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	var overall model.CoreUtilization
	var perCore []model.CoreUtilization
	var totalIdleDelta, totalAllDelta uint64
	regressed := false

	for _, line := range statLines {
		if !strings.HasPrefix(line, "cpu") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 5 {
			continue
		}
		tag := fields[0]
		coreID := -1 // -1 == aggregate "cpu" line
		if tag != "cpu" {
			n, err := strconv.Atoi(strings.TrimPrefix(tag, "cpu"))
			if err != nil {
				continue
			}
			coreID = n
			if len(allowed) > 0 && !allowed[coreID] {
				continue
			}
		}

		var sum, idle uint64
		for i, v := range fields[1:] {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				continue
			}
			sum += n
			if i == 3 { // idle field (4th value, 0-indexed field 3)
				idle = n
			}
		}

		prev, had := r.prevCPU[coreID]
		var pct float64
		if had && sum >= prev.total && idle >= prev.idle {
			deltaTotal := sum - prev.total
			deltaIdle := idle - prev.idle
			if deltaTotal > 0 {
				pct = ClampPct(100 * (1 - float64(deltaIdle)/float64(deltaTotal)))
			}
			if coreID == -1 {
				totalAllDelta = deltaTotal
				totalIdleDelta = deltaIdle
			}
		} else if had {
			regressed = true
		}
		r.prevCPU[coreID] = jiffies{idle: idle, total: sum}

		if coreID == -1 {
			overall = model.CoreUtilization{CoreID: -1, Pct: pct}
		} else {
			perCore = append(perCore, model.CoreUtilization{CoreID: coreID, Type: coreType(coreID), Pct: pct})
		}
	}
	r.prevTime = now
	_ = totalAllDelta
	_ = totalIdleDelta

	if regressed {
		r.logger.Debug("cpu counters regressed, zeroing utilization for this tick")
	}

	cores := len(perCore)
	sample := model.CpuSample{
		Model:          r.model(),
		Platform:       detectPlatform(),
		Sockets:        1,
		TotalCores:     cores,
		TotalThreads:   cores,
		UtilizationPct: overall.Pct,
		PerCore:        perCore,
	}
	return []model.DeviceSample{{Cpu: &sample}}, nil
}

func (r *LinuxCPUReader) model() string {
	if r.modelCache != "" {
		return r.modelCache
	}
	lines, err := readLines("/proc/cpuinfo")
	if err != nil {
		return "unknown"
	}
	for _, l := range lines {
		if strings.HasPrefix(l, "model name") {
			parts := strings.SplitN(l, ":", 2)
			if len(parts) == 2 {
				r.modelCache = strings.TrimSpace(parts[1])
				return r.modelCache
			}
		}
	}
	return "unknown"
}

func (r *LinuxCPUReader) IsAvailable() bool {
	_, err := os.Stat("/proc/stat")
	return err == nil
}

// coreType reports P/E classification for hybrid Intel CPUs by reading
// /sys/devices/cpu_core (P) / cpu_atom (E) cpu masks, if present. Falls
// back to Standard on non-hybrid hardware (the overwhelming majority).
func coreType(core int) model.CoreType {
	if inCPUMask("/sys/devices/cpu_core/cpus", core) {
		return model.CorePerformance
	}
	if inCPUMask("/sys/devices/cpu_atom/cpus", core) {
		return model.CoreEfficiency
	}
	return model.CoreStandard
}

func inCPUMask(path string, core int) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return cpuListContains(strings.TrimSpace(string(data)), core)
}

// cpuListContains parses a Linux cpulist like "0-3,8,10-11" and reports
// whether it contains core.
func cpuListContains(list string, core int) bool {
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.Contains(part, "-") {
			bounds := strings.SplitN(part, "-", 2)
			lo, err1 := strconv.Atoi(bounds[0])
			hi, err2 := strconv.Atoi(bounds[1])
			if err1 == nil && err2 == nil && core >= lo && core <= hi {
				return true
			}
		} else if n, err := strconv.Atoi(part); err == nil && n == core {
			return true
		}
	}
	return false
}

// cpusetAllowed returns the set of CPU indices this process is restricted
// to by a cgroup cpuset (v2 then v1), or nil if unrestricted. This is what
// lets a 2-CPU container correctly report cpu_core_count=2 rather than the
// host's full core count (spec section 4.2 container scenario).
func cpusetAllowed() map[int]bool {
	for _, path := range []string{
		"/sys/fs/cgroup/cpuset.cpus.effective",
		"/sys/fs/cgroup/cpuset.cpus",
		"/sys/fs/cgroup/cpuset/cpuset.cpus",
	} {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		list := strings.TrimSpace(string(data))
		if list == "" {
			continue
		}
		set := make(map[int]bool)
		for _, part := range strings.Split(list, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if strings.Contains(part, "-") {
				bounds := strings.SplitN(part, "-", 2)
				lo, err1 := strconv.Atoi(bounds[0])
				hi, err2 := strconv.Atoi(bounds[1])
				if err1 == nil && err2 == nil {
					for i := lo; i <= hi; i++ {
						set[i] = true
					}
				}
			} else if n, err := strconv.Atoi(part); err == nil {
				set[n] = true
			}
		}
		if len(set) > 0 {
			return set
		}
	}
	return nil
}

func detectPlatform() model.CPUPlatform {
	lines, err := readLines("/proc/cpuinfo")
	if err != nil {
		return model.PlatformOther
	}
	for _, l := range lines {
		low := strings.ToLower(l)
		if strings.HasPrefix(low, "vendor_id") {
			if strings.Contains(low, "intel") {
				return model.PlatformIntel
			}
			if strings.Contains(low, "amd") {
				return model.PlatformAMD
			}
		}
		if strings.HasPrefix(low, "cpu implementer") {
			return model.PlatformARM
		}
	}
	return model.PlatformOther
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}
