//go:build darwin

package collector

import (
	"context"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zeroday0619/all-smi/internal/model"
)

// AppleCPUReader reads Apple Silicon CPU topology and utilization via
// sysctl (spec section 4.2: "Apple: reads via sysctl; distinguishes P/E
// clusters"). Per-core live utilization on Apple Silicon is not exposed by
// sysctl, so overall utilization falls back to the host load average
// normalized by core count, same fallback shape as other tool-light
// readers (spec 4.2's "best-effort" allowance).
type AppleCPUReader struct {
	logger *zap.Logger

	mu     sync.Mutex
	cached *model.CpuSample
	fetch  time.Time
}

// NewAppleCPUReader creates the Apple Silicon CPU reader.
func NewAppleCPUReader(logger *zap.Logger) *AppleCPUReader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AppleCPUReader{logger: logger}
}

func (r *AppleCPUReader) Name() string { return "cpu-apple" }

func (r *AppleCPUReader) Sample(ctx context.Context) ([]model.DeviceSample, error) {
	brand := sysctlString(ctx, "machdep.cpu.brand_string")
	pCores := sysctlInt(ctx, "hw.perflevel0.physicalcpu")
	eCores := sysctlInt(ctx, "hw.perflevel1.physicalcpu")
	total := sysctlInt(ctx, "hw.physicalcpu")
	threads := sysctlInt(ctx, "hw.logicalcpu")

	loadPct := r.loadPct(ctx, total)

	sample := model.CpuSample{
		Model:          brand,
		Platform:       model.PlatformApple,
		Sockets:        1,
		TotalCores:     total,
		TotalThreads:   threads,
		UtilizationPct: loadPct,
		AppleSilicon: &model.AppleSiliconCPU{
			PCoreCount: pCores,
			ECoreCount: eCores,
		},
	}
	return []model.DeviceSample{{Cpu: &sample}}, nil
}

func (r *AppleCPUReader) loadPct(ctx context.Context, cores int) float64 {
	if cores <= 0 {
		cores = 1
	}
	out, err := RunTool(ctx, r.Name(), "sysctl", "-n", "vm.loadavg")
	if err != nil {
		return 0
	}
	fields := strings.Fields(strings.Trim(strings.TrimSpace(string(out)), "{}"))
	if len(fields) == 0 {
		return 0
	}
	load1, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0
	}
	return ClampPct(100 * load1 / float64(cores))
}

func (r *AppleCPUReader) IsAvailable() bool {
	_, err := exec.LookPath("sysctl")
	return err == nil
}

func sysctlString(ctx context.Context, key string) string {
	out, err := RunTool(ctx, "cpu-apple", "sysctl", "-n", key)
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(string(out))
}

func sysctlInt(ctx context.Context, key string) int {
	out, err := RunTool(ctx, "cpu-apple", "sysctl", "-n", key)
	if err != nil {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(out)))
	if err != nil {
		return 0
	}
	return n
}
