//go:build darwin

package factory

import (
	"go.uber.org/zap"

	"github.com/zeroday0619/all-smi/internal/collector"
	"github.com/zeroday0619/all-smi/internal/contracts"
	"github.com/zeroday0619/all-smi/internal/sampler"
)

const applePowerSamplerIdentity = "apple-power"

func platformCPUReader(logger *zap.Logger) contracts.DeviceReader {
	return collector.NewAppleCPUReader(logger)
}

func platformMemoryReader(logger *zap.Logger) contracts.DeviceReader {
	return collector.NewFallbackMemoryReader(logger)
}

func platformAccelerators(logger *zap.Logger, registry *sampler.Registry) []contracts.DeviceReader {
	manager := registry.GetOrCreate(applePowerSamplerIdentity, collector.AppleSamplerCommand,
		collector.AppleSamplerLineParser(), sampler.DefaultRingCapacity)

	candidates := []contracts.DeviceReader{
		collector.NewAppleGPUReader(manager, logger),
	}
	return probeAvailable(candidates, logger)
}
