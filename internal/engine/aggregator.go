package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/zeroday0619/all-smi/internal/contracts"
)

// Aggregator drives one DataCollectionStrategy on a ticking interval and
// applies every cycle's result into a StateWriter, implementing spec
// section 4.7's Aggregator role. The strategies themselves already know
// how to fold one cycle's CollectionData into state (LocalStrategy.Apply,
// RemoteStrategy.Apply) — Aggregator's job is solely the run loop:
// respecting cancellation, never starting a new cycle while shutdown is
// in progress, and letting an in-flight cycle finish or time out before
// returning.
type Aggregator struct {
	strategy contracts.DataCollectionStrategy
	state    contracts.StateWriter
	cfg      contracts.CollectionConfig
	interval time.Duration
	logger   *zap.Logger
}

// NewAggregator builds an Aggregator over strategy, writing into state on
// every tick of interval.
func NewAggregator(strategy contracts.DataCollectionStrategy, state contracts.StateWriter, cfg contracts.CollectionConfig, interval time.Duration, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{strategy: strategy, state: state, cfg: cfg, interval: interval, logger: logger}
}

// Run blocks, driving collection cycles until ctx is canceled. On
// cancellation, an in-flight cycle is given until its own per-reader
// deadlines to finish before Run returns (spec 4.7: "on shutdown the
// engine completes no new requests, lets in-flight requests finish or
// time out, then returns").
func (a *Aggregator) Run(ctx context.Context) {
	a.runCycle(ctx)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.runCycle(ctx)
		}
	}
}

func (a *Aggregator) runCycle(ctx context.Context) {
	data, err := a.strategy.Collect(context.WithoutCancel(ctx), a.cfg)
	if err != nil {
		a.logger.Warn("collection cycle failed", zap.String("strategy", a.strategy.StrategyName()), zap.Error(err))
		return
	}
	a.strategy.Apply(a.state, data)
}
