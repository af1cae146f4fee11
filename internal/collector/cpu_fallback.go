//go:build !linux && !darwin

package collector

import (
	"context"

	"github.com/shirou/gopsutil/v3/cpu"
	"go.uber.org/zap"

	"github.com/zeroday0619/all-smi/internal/model"
)

// FallbackCPUReader backs platforms without a dedicated reader (spec
// section 1's platform list is Linux/macOS/Windows; Windows has no
// vendor-specific CPU reporting contract in scope, so it gets the
// portable gopsutil path already used elsewhere in this package tree for
// cross-platform reads).
type FallbackCPUReader struct {
	logger *zap.Logger
}

// NewFallbackCPUReader creates the portable CPU reader.
func NewFallbackCPUReader(logger *zap.Logger) *FallbackCPUReader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FallbackCPUReader{logger: logger}
}

func (r *FallbackCPUReader) Name() string { return "cpu-fallback" }

func (r *FallbackCPUReader) Sample(ctx context.Context) ([]model.DeviceSample, error) {
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return nil, err
	}
	infos, err := cpu.InfoWithContext(ctx)
	if err != nil {
		return nil, err
	}

	modelName := "unknown"
	var maxFreq float64
	if len(infos) > 0 {
		modelName = infos[0].ModelName
		maxFreq = infos[0].Mhz
	}

	counts, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		counts = len(infos)
	}

	var pct float64
	if len(percents) > 0 {
		pct = ClampPct(percents[0])
	}

	sample := model.CpuSample{
		Model:          modelName,
		Platform:       model.PlatformOther,
		Sockets:        1,
		TotalCores:     counts,
		TotalThreads:   counts,
		MaxFreqMHz:     maxFreq,
		UtilizationPct: pct,
	}
	return []model.DeviceSample{{Cpu: &sample}}, nil
}

func (r *FallbackCPUReader) IsAvailable() bool { return true }
