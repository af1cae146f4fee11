// Package factory implements the reader factory (spec section 4.4): a
// platform + feature probe that builds an immutable AcceleratorRoster plus
// one CPU/Memory/Storage/Chassis reader each, in a deterministic priority
// order, caching the result for the process lifetime. Grounded on the
// teacher's platform.go/stub.go/windows.go build-tag-gated-stub pattern,
// generalized from "one platform backend" to "N accelerator family
// backends probed in order".
package factory

import (
	"sync"

	"go.uber.org/zap"

	"github.com/zeroday0619/all-smi/internal/collector"
	"github.com/zeroday0619/all-smi/internal/contracts"
	"github.com/zeroday0619/all-smi/internal/sampler"
)

// AcceleratorRoster is the immutable set of accelerator readers found
// present on this host at startup. Re-probing is forbidden by design
// (spec section 4.4's "re-instantiation across the process lifetime is
// forbidden"); a device appearing after startup is picked up on the next
// process restart, not dynamically.
type AcceleratorRoster struct {
	Readers []contracts.DeviceReader
}

// Roster is the factory's full output: the accelerator roster plus the
// three always-constructed host readers and a process enumerator.
type Roster struct {
	Accelerators AcceleratorRoster
	CPU          contracts.DeviceReader
	Memory       contracts.DeviceReader
	Storage      contracts.DeviceReader
	Chassis      contracts.DeviceReader
	Processes    contracts.ProcessEnumerator
}

var (
	rosterOnce sync.Once
	roster     *Roster
)

// New builds the Roster on its first call and returns that same Roster on
// every later call, whose arguments are then ignored. hostID/hostname are
// stamped onto StorageSamples; samplerRegistry backs any accelerator reader
// that streams through a subprocess (Apple power, Gaudi) so only one such
// subprocess is ever spawned per identity, shared across repeated factory
// consumers within the same process.
func New(logger *zap.Logger, samplerRegistry *sampler.Registry, hostID, hostname string) *Roster {
	rosterOnce.Do(func() {
		if logger == nil {
			logger = zap.NewNop()
		}
		roster = &Roster{
			Accelerators: AcceleratorRoster{Readers: platformAccelerators(logger, samplerRegistry)},
			CPU:          platformCPUReader(logger),
			Memory:       platformMemoryReader(logger),
			Storage:      collector.NewStorageReader(hostID, hostname, logger),
			Chassis:      collector.NewChassisReader(logger),
			Processes:    collector.NewProcessReader(logger),
		}
	})
	return roster
}

// probeAvailable runs each candidate's AvailabilityProbe (when it
// implements one) and keeps only the readers that report present. This is
// the factory's step 2-3: a cheap, side-effect-free probe followed by
// deterministic-order construction — candidates are tried in the slice
// order the caller supplied, which is itself the priority order.
func probeAvailable(candidates []contracts.DeviceReader, logger *zap.Logger) []contracts.DeviceReader {
	out := make([]contracts.DeviceReader, 0, len(candidates))
	for _, c := range candidates {
		if probe, ok := c.(contracts.AvailabilityProbe); ok && !probe.IsAvailable() {
			logger.Debug("accelerator reader unavailable, skipping", zap.String("reader", c.Name()))
			continue
		}
		out = append(out, c)
	}
	return out
}
