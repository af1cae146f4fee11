//go:build !linux

package collector

import (
	"context"

	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/zeroday0619/all-smi/internal/model"
)

// FallbackMemoryReader backs macOS and Windows via gopsutil, which already
// normalizes each platform's native memory API.
type FallbackMemoryReader struct {
	logger *zap.Logger
}

// NewFallbackMemoryReader creates the portable memory reader.
func NewFallbackMemoryReader(logger *zap.Logger) *FallbackMemoryReader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FallbackMemoryReader{logger: logger}
}

func (r *FallbackMemoryReader) Name() string { return "memory-fallback" }

func (r *FallbackMemoryReader) Sample(ctx context.Context) ([]model.DeviceSample, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, err
	}
	swap, err := mem.SwapMemoryWithContext(ctx)
	if err != nil {
		swap = &mem.SwapMemoryStat{}
	}

	sample := model.MemorySample{
		TotalBytes:     vm.Total,
		UsedBytes:      vm.Used,
		AvailableBytes: vm.Available,
		FreeBytes:      vm.Free,
		SwapTotalBytes: swap.Total,
		SwapUsedBytes:  swap.Used,
		SwapFreeBytes:  swap.Free,
		UtilizationPct: ClampPct(vm.UsedPercent),
	}
	return []model.DeviceSample{{Memory: &sample}}, nil
}

func (r *FallbackMemoryReader) IsAvailable() bool { return true }
