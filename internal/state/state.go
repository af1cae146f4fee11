// Package state owns AppState, the single in-memory application state the
// collection engine writes and the exporter/UI collaborator read. It is the
// only package in this module allowed to hold the read-write lock described
// in spec section 5: one writer (the engine) at a time, many concurrent
// readers, with bounded lock-acquisition timeouts so a stuck cycle degrades
// to "skip this cycle" rather than wedging the exporter.
package state

import (
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zeroday0619/all-smi/internal/model"
)

// HistoryCapacity is the sparkline buffer depth (spec section 3: "≈60
// samples").
const HistoryCapacity = 60

// DefaultLockTimeout bounds both read and write lock acquisition (spec
// section 5: "read lock timeout 2s, write lock timeout 2s").
const DefaultLockTimeout = 2 * time.Second

// lockPollInterval is how often tryLockTimeout re-attempts TryLock/TryRLock
// while waiting for the timeout to elapse. sync.RWMutex has supported
// TryLock/TryRLock since Go 1.18; polling them is the standard way to get a
// bounded-wait lock without a third-party mutex implementation.
const lockPollInterval = time.Millisecond

// sparkline is a fixed-capacity ring of scalar history points used for UI
// display; it never grows past HistoryCapacity.
type sparkline struct {
	points []float64
}

func (s *sparkline) push(v float64) {
	s.points = append(s.points, v)
	if len(s.points) > HistoryCapacity {
		s.points = s.points[len(s.points)-HistoryCapacity:]
	}
}

// hostHistory buffers per-metric sparklines for one host. Keyed by a
// caller-chosen metric name (e.g. "gpu:<uuid>:utilization", "cpu:0:utilization",
// "memory:utilization") so any number of scalar series can be tracked
// without a fixed schema.
type hostHistory struct {
	series map[string]*sparkline
}

func newHostHistory() *hostHistory {
	return &hostHistory{series: make(map[string]*sparkline)}
}

func (h *hostHistory) push(key string, v float64) {
	s, ok := h.series[key]
	if !ok {
		s = &sparkline{}
		h.series[key] = s
	}
	s.push(v)
}

func (h *hostHistory) snapshot(key string) []float64 {
	s, ok := h.series[key]
	if !ok {
		return nil
	}
	out := make([]float64, len(s.points))
	copy(out, s.points)
	return out
}

// AppState is the shared, thread-safe mapping host_id -> HostSnapshot plus
// per-host sparkline history. The Collection engine is the exclusive
// writer; the exporter and the UI collaborator are readers.
type AppState struct {
	mu      sync.RWMutex
	hosts   map[string]model.HostSnapshot
	history map[string]*hostHistory
	logger  *zap.Logger
}

// New creates an empty AppState. Pass nil for logger to disable logging
// (tests do this).
func New(logger *zap.Logger) *AppState {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AppState{
		hosts:   make(map[string]model.HostSnapshot),
		history: make(map[string]*hostHistory),
		logger:  logger,
	}
}

// tryLockTimeout polls acquire() until it returns true or timeout elapses.
// Returns false on timeout, in which case the caller must not hold the
// lock.
func tryLockTimeout(acquire func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if acquire() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(lockPollInterval)
	}
}

// ApplySnapshot replaces the stored snapshot for hostID and appends its
// scalar fields to the sparkline history. Implements
// contracts.StateWriter.
func (a *AppState) ApplySnapshot(hostID string, snap model.HostSnapshot) {
	if !tryLockTimeout(a.mu.TryLock, DefaultLockTimeout) {
		a.logger.Warn("state write lock timed out, dropping cycle update", zap.String("host", hostID))
		return
	}
	defer a.mu.Unlock()

	a.hosts[hostID] = snap

	h, ok := a.history[hostID]
	if !ok {
		h = newHostHistory()
		a.history[hostID] = h
	}
	for _, gpu := range snap.Devices {
		h.push("gpu:"+gpu.UUID+":utilization", gpu.UtilizationPct)
		h.push("gpu:"+gpu.UUID+":power", gpu.PowerW)
	}
	for i, cpu := range snap.CPUs {
		h.push("cpu:"+strconv.Itoa(i)+":utilization", cpu.UtilizationPct)
	}
	h.push("memory:utilization", snap.Memory.UtilizationPct)
}

// MarkStale sets FetchErrWithReason on the existing snapshot for hostID
// while preserving the last good sample data (spec section 7: "the
// previous snapshot is retained but marked stale"). If no snapshot exists
// yet, an empty placeholder with FetchErrWithReason and the reason is
// created instead so the host still shows up.
func (a *AppState) MarkStale(hostID string, reason string) {
	if !tryLockTimeout(a.mu.TryLock, DefaultLockTimeout) {
		a.logger.Warn("state write lock timed out, could not mark host stale", zap.String("host", hostID))
		return
	}
	defer a.mu.Unlock()

	snap, ok := a.hosts[hostID]
	if !ok {
		snap = model.HostSnapshot{HostID: hostID, FetchStatus: model.FetchPending}
	}
	snap.FetchStatus = model.FetchErrWithReason
	snap.StatusError = reason
	a.hosts[hostID] = snap
}

// Snapshot returns a shallow copy of the full host map, safe for the
// exporter to iterate without holding the lock (spec section 5: "the
// exporter never emits a torn snapshot").
func (a *AppState) Snapshot() map[string]model.HostSnapshot {
	if !tryLockTimeout(a.mu.TryRLock, DefaultLockTimeout) {
		a.logger.Warn("state read lock timed out, returning empty snapshot")
		return map[string]model.HostSnapshot{}
	}
	defer a.mu.RUnlock()

	out := make(map[string]model.HostSnapshot, len(a.hosts))
	for k, v := range a.hosts {
		out[k] = v
	}
	return out
}

// History returns up to HistoryCapacity scalar points for the given host
// and series key, oldest first. Returns nil if the series has no data yet.
func (a *AppState) History(hostID, key string) []float64 {
	if !tryLockTimeout(a.mu.TryRLock, DefaultLockTimeout) {
		return nil
	}
	defer a.mu.RUnlock()

	h, ok := a.history[hostID]
	if !ok {
		return nil
	}
	return h.snapshot(key)
}

// HostIDs returns the set of known host ids.
func (a *AppState) HostIDs() []string {
	if !tryLockTimeout(a.mu.TryRLock, DefaultLockTimeout) {
		return nil
	}
	defer a.mu.RUnlock()

	ids := make([]string, 0, len(a.hosts))
	for id := range a.hosts {
		ids = append(ids, id)
	}
	return ids
}
