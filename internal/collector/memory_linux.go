//go:build linux

package collector

import (
	"context"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/zeroday0619/all-smi/internal/model"
)

// LinuxMemoryReader reads /proc/meminfo, folding in a cgroup memory limit
// when the process is confined (spec section 4.2's container scenario
// mirrors the CPU reader's cpuset handling).
type LinuxMemoryReader struct {
	logger *zap.Logger
}

// NewLinuxMemoryReader creates the Linux memory reader.
func NewLinuxMemoryReader(logger *zap.Logger) *LinuxMemoryReader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LinuxMemoryReader{logger: logger}
}

func (r *LinuxMemoryReader) Name() string { return "memory-linux" }

func (r *LinuxMemoryReader) Sample(ctx context.Context) ([]model.DeviceSample, error) {
	_ = ctx
	lines, err := readLines("/proc/meminfo")
	if err != nil {
		return nil, err
	}

	values := make(map[string]uint64, len(lines))
	for _, l := range lines {
		parts := strings.SplitN(l, ":", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		fields := strings.Fields(parts[1])
		if len(fields) == 0 {
			continue
		}
		n, err := strconv.ParseUint(fields[0], 10, 64)
		if err != nil {
			continue
		}
		values[key] = n * 1024 // /proc/meminfo reports kB
	}

	total := values["MemTotal"]
	free := values["MemFree"]
	available := values["MemAvailable"]
	if available == 0 {
		available = free
	}
	buffers := values["Buffers"]
	cached := values["Cached"]
	swapTotal := values["SwapTotal"]
	swapFree := values["SwapFree"]

	if limit, ok := cgroupMemoryLimit(); ok && limit < total {
		total = limit
	}

	used := uint64(0)
	if total > available {
		used = total - available
	}
	var pct float64
	if total > 0 {
		pct = ClampPct(100 * float64(used) / float64(total))
	}

	sample := model.MemorySample{
		TotalBytes:     total,
		UsedBytes:      used,
		AvailableBytes: available,
		FreeBytes:      free,
		BuffersBytes:   buffers,
		CachedBytes:    cached,
		SwapTotalBytes: swapTotal,
		SwapUsedBytes:  swapTotal - swapFree,
		SwapFreeBytes:  swapFree,
		UtilizationPct: pct,
	}
	return []model.DeviceSample{{Memory: &sample}}, nil
}

func (r *LinuxMemoryReader) IsAvailable() bool {
	_, err := os.Stat("/proc/meminfo")
	return err == nil
}

// cgroupMemoryLimit reads the cgroup v2 "max" limit, then the v1
// memory.limit_in_bytes file. A limit of "max" (v2's unset sentinel) or a
// v1 value at/above the kernel's "no limit" ceiling (PAGE_COUNTER_MAX,
// reported as a huge number) is treated as unset.
func cgroupMemoryLimit() (uint64, bool) {
	if data, err := os.ReadFile("/sys/fs/cgroup/memory.max"); err == nil {
		s := strings.TrimSpace(string(data))
		if s == "max" {
			return 0, false
		}
		if n, err := strconv.ParseUint(s, 10, 64); err == nil {
			return n, true
		}
	}
	if data, err := os.ReadFile("/sys/fs/cgroup/memory/memory.limit_in_bytes"); err == nil {
		s := strings.TrimSpace(string(data))
		if n, err := strconv.ParseUint(s, 10, 64); err == nil && n < 1<<62 {
			return n, true
		}
	}
	return 0, false
}
