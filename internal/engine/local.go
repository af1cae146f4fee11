// Package engine implements the collection engine (spec section 4.7 /
// C7): LocalStrategy fans out to this host's own device readers,
// RemoteStrategy scrapes other all-smi instances' /metrics endpoints, and
// Aggregator merges either strategy's output into AppState.
package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zeroday0619/all-smi/internal/contracts"
	"github.com/zeroday0619/all-smi/internal/factory"
	"github.com/zeroday0619/all-smi/internal/model"
)

// DefaultReaderDeadline is the per-reader call deadline (spec 4.7: "each
// reader call has an individual deadline (default 2s)").
const DefaultReaderDeadline = 2 * time.Second

// LocalStrategy fans out to every reader in a factory.Roster
// concurrently; a failing reader only loses that reader's contribution to
// this cycle, never the whole snapshot (spec 4.7: "partial failure does
// not fail the whole cycle").
type LocalStrategy struct {
	roster   *factory.Roster
	hostID   string
	hostname string
	logger   *zap.Logger

	firstCycle bool
	mu         sync.Mutex
}

// NewLocalStrategy builds a LocalStrategy over roster, stamping hostID
// and hostname onto the HostSnapshot it produces (all local-mode data
// belongs to exactly one host: this one).
func NewLocalStrategy(roster *factory.Roster, hostID, hostname string, logger *zap.Logger) *LocalStrategy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalStrategy{roster: roster, hostID: hostID, hostname: hostname, logger: logger, firstCycle: true}
}

func (s *LocalStrategy) StrategyName() string { return "local" }

// Collect runs every configured reader concurrently, each bounded by
// cfg.ReaderDeadline, and folds their DeviceSample output into one
// HostSnapshot for this host.
func (s *LocalStrategy) Collect(ctx context.Context, cfg contracts.CollectionConfig) (contracts.CollectionData, error) {
	deadline := cfg.ReaderDeadline
	if deadline <= 0 {
		deadline = DefaultReaderDeadline
	}

	readers := make([]contracts.DeviceReader, 0, len(s.roster.Accelerators.Readers)+4)
	readers = append(readers, s.roster.Accelerators.Readers...)
	readers = append(readers, s.roster.CPU, s.roster.Memory, s.roster.Storage, s.roster.Chassis)

	var mu sync.Mutex
	var gpus []model.GpuSample
	var cpus []model.CpuSample
	var mem model.MemorySample
	var storages []model.StorageSample
	var chassis *model.ChassisSample

	g, gctx := errgroup.WithContext(ctx)
	for _, r := range readers {
		r := r
		g.Go(func() error {
			rctx, cancel := context.WithTimeout(gctx, deadline)
			defer cancel()

			samples, err := r.Sample(rctx)
			if err != nil {
				if s.firstCycle {
					s.logger.Warn("reader failed on first cycle", zap.String("reader", r.Name()), zap.Error(err))
				} else {
					s.logger.Debug("reader failed this cycle", zap.String("reader", r.Name()), zap.Error(err))
				}
				return nil
			}

			mu.Lock()
			defer mu.Unlock()
			for _, ds := range samples {
				switch {
				case ds.Gpu != nil:
					gpus = append(gpus, *ds.Gpu)
				case ds.Cpu != nil:
					cpus = append(cpus, *ds.Cpu)
				case ds.Memory != nil:
					mem = *ds.Memory
				case ds.Storage != nil:
					storages = append(storages, *ds.Storage)
				case ds.Chassis != nil:
					chassis = ds.Chassis
				}
			}
			return nil
		})
	}

	var processes []model.ProcessSample
	if cfg.IncludeProcesses && s.roster.Processes != nil {
		g.Go(func() error {
			rctx, cancel := context.WithTimeout(gctx, deadline)
			defer cancel()
			procs, err := s.roster.Processes.Processes(rctx)
			if err != nil {
				s.logger.Debug("process enumeration failed this cycle", zap.Error(err))
				return nil
			}
			mu.Lock()
			processes = procs
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait() // readers absorb their own errors; Wait never actually returns non-nil here

	storages = dedupeStorage(storages)

	snap := model.HostSnapshot{
		HostID:      s.hostID,
		Hostname:    s.hostname,
		Devices:     gpus,
		CPUs:        cpus,
		Memory:      mem,
		Storages:    storages,
		Chassis:     chassis,
		Processes:   processes,
		LastUpdated: time.Now(),
		FetchStatus: model.FetchOk,
	}

	s.mu.Lock()
	s.firstCycle = false
	s.mu.Unlock()

	return contracts.CollectionData{Snapshots: map[string]model.HostSnapshot{s.hostID: snap}}, nil
}

// Apply writes every collected host snapshot into state. Implements
// contracts.DataCollectionStrategy.
func (s *LocalStrategy) Apply(state contracts.StateWriter, data contracts.CollectionData) {
	for hostID, snap := range data.Snapshots {
		state.ApplySnapshot(hostID, snap)
	}
}

// dedupeStorage keeps the first occurrence of each mount_point, preserving
// input order otherwise (spec 4.7: "deduplicated per host by mount_point
// keeping the first occurrence (stable sort by index)").
func dedupeStorage(in []model.StorageSample) []model.StorageSample {
	seen := make(map[string]bool, len(in))
	out := make([]model.StorageSample, 0, len(in))
	for _, st := range in {
		if seen[st.MountPoint] {
			continue
		}
		seen[st.MountPoint] = true
		out = append(out, st)
	}
	return out
}
