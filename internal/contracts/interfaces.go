package contracts

import (
	"context"
	"time"

	"github.com/zeroday0619/all-smi/internal/model"
)

// DeviceReader produces samples for one resource family on the local host.
// Implementations must be stateless from the caller's point of view: two
// calls to Sample with no intervening hardware event differ only in their
// time-varying fields. A reader may cache static metadata (driver version,
// board type) internally.
type DeviceReader interface {
	// Name identifies the reader for logging and per-reader deadline
	// accounting, e.g. "nvidia", "cpu-linux", "storage".
	Name() string

	// Sample gathers the current set of DeviceSamples. ctx carries the
	// per-reader deadline (default 2s); implementations must honor
	// cancellation rather than blocking past it.
	Sample(ctx context.Context) ([]model.DeviceSample, error)
}

// ProcessEnumerator is an optional capability a GPU-family DeviceReader may
// also implement to report per-process accelerator usage.
type ProcessEnumerator interface {
	Processes(ctx context.Context) ([]model.ProcessSample, error)
}

// AvailabilityProbe is an optional capability the reader factory uses
// during roster construction (spec section 4.4): a cheap, synchronous
// check for whether this reader's backing tool/library/sysfs path exists
// on the current host, run once at startup rather than on every Sample.
type AvailabilityProbe interface {
	IsAvailable() bool
}

// CollectionConfig parameterizes a DataCollectionStrategy run: the local
// strategy uses ReaderDeadline; the remote strategy uses HostURLs,
// Concurrency, and the SSRF/auth settings.
type CollectionConfig struct {
	ReaderDeadline      time.Duration
	HostURLs            []string
	Concurrency         int
	RequestTimeout      time.Duration
	MaxResponseBytes    int64
	AuthToken           string
	AllowPrivateTargets bool
	IncludeProcesses    bool
}

// CollectionData is what a strategy produces in one cycle, keyed by host id.
type CollectionData struct {
	Snapshots map[string]model.HostSnapshot
}

// DataCollectionStrategy is the Strategy-pattern seam between "how do we
// get samples" (local fan-out to readers vs. remote HTTP scrape) and "how
// do we apply them to shared state" (the Aggregator).
type DataCollectionStrategy interface {
	StrategyName() string
	Collect(ctx context.Context, cfg CollectionConfig) (CollectionData, error)
	Apply(state StateWriter, data CollectionData)
}

// StateWriter is the narrow slice of AppState the engine needs; defined
// here (rather than importing internal/state) to avoid an import cycle
// between contracts and state.
type StateWriter interface {
	ApplySnapshot(hostID string, snap model.HostSnapshot)
	MarkStale(hostID string, reason string)
}

// MetricsExporter renders a consistent snapshot of application state into a
// single UTF-8 Prometheus exposition blob. Exporters never sample; they
// only read.
type MetricsExporter interface {
	Export(snapshot map[string]model.HostSnapshot) ([]byte, error)
}

// SamplerBackend hides a long-lived vendor subprocess behind a uniform
// interface so device readers never deal with process lifecycle directly.
type SamplerBackend interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	IsAlive() bool
	Latest() (model.Frame, bool)
	History(n int) []model.Frame
}
