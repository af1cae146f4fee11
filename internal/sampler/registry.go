package sampler

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Registry hands out exactly one Manager per tool identity, constructing it
// lazily on first request. This is the "process-wide guarded handle"
// singleton pattern from spec section 9: concurrent first-callers for the
// same identity block on the same sync.Once rather than racing to
// construct two Managers for one tool.
type Registry struct {
	mu       sync.Mutex
	managers map[string]*managerEntry
	logger   *zap.Logger
}

type managerEntry struct {
	once    sync.Once
	manager *Manager
}

// NewRegistry creates an empty sampler registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		managers: make(map[string]*managerEntry),
		logger:   logger,
	}
}

// GetOrCreate returns the Manager for identity, constructing it via build
// exactly once even under concurrent callers. Subsequent calls for the
// same identity ignore build and return the existing Manager.
func (r *Registry) GetOrCreate(identity string, build CommandFactory, parse LineParser, ringCapacity int) *Manager {
	r.mu.Lock()
	entry, ok := r.managers[identity]
	if !ok {
		entry = &managerEntry{}
		r.managers[identity] = entry
	}
	r.mu.Unlock()

	entry.once.Do(func() {
		entry.manager = NewManager(identity, build, parse, ringCapacity, r.logger)
	})
	return entry.manager
}

// StopAll stops every manager ever created by this registry, in the manner
// a process shutdown handler needs: best-effort, collecting no errors that
// would block the rest from stopping.
func (r *Registry) StopAll(ctx context.Context) {
	r.mu.Lock()
	entries := make([]*managerEntry, 0, len(r.managers))
	for _, e := range r.managers {
		entries = append(entries, e)
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, e := range entries {
		if e.manager == nil {
			continue
		}
		wg.Add(1)
		go func(m *Manager) {
			defer wg.Done()
			_ = m.Stop(ctx)
		}(e.manager)
	}
	wg.Wait()
}
