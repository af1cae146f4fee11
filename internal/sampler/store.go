package sampler

import (
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/zeroday0619/all-smi/internal/model"
)

// DefaultRingCapacity is the default number of retained frames per tool
// identity (spec section 3: "ring buffer of the latest N parsed frames
// (default N=16, configurable)").
const DefaultRingCapacity = 16

// Store is a bounded ring buffer of the most recent frames produced by one
// sampler subprocess, plus a separately-cached "latest good frame" cell so
// device readers get O(1) reads without walking the ring (spec section
// 4.3). The ring is implemented on top of an LRU cache keyed by monotonic
// sequence number: because entries are only ever inserted, never
// re-touched, LRU eviction order coincides exactly with insertion order,
// giving FIFO/ring semantics for free while reusing a library already in
// the dependency graph rather than hand-rolling a circular slice.
type Store struct {
	mu       sync.Mutex
	ring     *lru.LRU[uint64, model.Frame]
	sequence uint64

	latest atomic.Pointer[model.Frame]
}

// NewStore creates a Store with the given ring capacity. capacity <= 0
// falls back to DefaultRingCapacity.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultRingCapacity
	}
	ring, _ := lru.NewLRU[uint64, model.Frame](capacity, nil)
	return &Store{ring: ring}
}

// Push records a newly parsed frame, overwriting the oldest entry once the
// ring is full, and atomically updates the latest-good-frame cell.
func (s *Store) Push(fields map[string]string) model.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sequence++
	frame := model.Frame{
		Sequence: s.sequence,
		Captured: time.Now(),
		Fields:   fields,
	}
	s.ring.Add(frame.Sequence, frame)
	s.latest.Store(&frame)
	return frame
}

// Latest returns the most recently parsed frame, if any.
func (s *Store) Latest() (model.Frame, bool) {
	f := s.latest.Load()
	if f == nil {
		return model.Frame{}, false
	}
	return *f, true
}

// History returns up to n of the most recent frames, oldest first. n <= 0
// or n greater than the ring's contents returns everything available.
func (s *Store) History(n int) []model.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := s.ring.Keys() // oldest to newest
	if n > 0 && n < len(keys) {
		keys = keys[len(keys)-n:]
	}
	out := make([]model.Frame, 0, len(keys))
	for _, k := range keys {
		if f, ok := s.ring.Peek(k); ok {
			out = append(out, f)
		}
	}
	return out
}

// Len reports how many frames are currently retained.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ring.Len()
}
