//go:build !linux && !darwin

package factory

import (
	"go.uber.org/zap"

	"github.com/zeroday0619/all-smi/internal/collector"
	"github.com/zeroday0619/all-smi/internal/contracts"
	"github.com/zeroday0619/all-smi/internal/sampler"
)

func platformCPUReader(logger *zap.Logger) contracts.DeviceReader {
	return collector.NewFallbackCPUReader(logger)
}

func platformMemoryReader(logger *zap.Logger) contracts.DeviceReader {
	return collector.NewFallbackMemoryReader(logger)
}

// platformAccelerators on platforms without a dedicated family backend
// (Windows) still probes NVIDIA and TPU, both of which are OS-agnostic in
// this implementation (nvidia-smi ships a Windows build; the TPU reader
// is a plain HTTP/CLI probe).
func platformAccelerators(logger *zap.Logger, registry *sampler.Registry) []contracts.DeviceReader {
	_ = registry
	candidates := []contracts.DeviceReader{
		collector.NewNvidiaReader(logger),
		collector.NewTPUReader(logger),
	}
	return probeAvailable(candidates, logger)
}
