//go:build linux

package factory

import (
	"go.uber.org/zap"

	"github.com/zeroday0619/all-smi/internal/collector"
	"github.com/zeroday0619/all-smi/internal/contracts"
	"github.com/zeroday0619/all-smi/internal/sampler"
)

const gaudiSamplerIdentity = "gaudi-hl-smi"

func platformCPUReader(logger *zap.Logger) contracts.DeviceReader {
	return collector.NewLinuxCPUReader(logger)
}

func platformMemoryReader(logger *zap.Logger) contracts.DeviceReader {
	return collector.NewLinuxMemoryReader(logger)
}

// platformAccelerators lists every accelerator family this reader factory
// knows how to probe on Linux, in priority order. NVIDIA and AMD are
// tried first as the most common datacenter/workstation accelerators,
// followed by the embedded/NPU families.
func platformAccelerators(logger *zap.Logger, registry *sampler.Registry) []contracts.DeviceReader {
	gaudiManager := registry.GetOrCreate(gaudiSamplerIdentity, collector.GaudiSamplerCommand, collector.GaudiLineParser, sampler.DefaultRingCapacity)

	candidates := []contracts.DeviceReader{
		collector.NewNvidiaReader(logger),
		collector.NewAMDReader(logger),
		collector.NewJetsonReader(logger),
		collector.NewGaudiReader(gaudiManager, logger),
		collector.NewTPUReader(logger),
		collector.NewTenstorrentReader(logger),
		collector.NewRebellionsReader(logger),
		collector.NewFuriosaReader(logger),
	}
	return probeAvailable(candidates, logger)
}
