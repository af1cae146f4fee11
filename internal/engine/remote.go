package engine

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/zeroday0619/all-smi/internal/contracts"
	"github.com/zeroday0619/all-smi/internal/model"
	"github.com/zeroday0619/all-smi/internal/parser"
	"github.com/zeroday0619/all-smi/internal/transport"
)

const (
	// DefaultRemoteConcurrency bounds simultaneous outgoing scrapes (spec
	// 4.7: "bounded by a global semaphore (default 64)").
	DefaultRemoteConcurrency = 64

	// maxAttempts and the backoff schedule implement spec 4.7's retry
	// policy: "attempts <=3 with exponential backoff (50ms, 100ms,
	// 150ms, +/- jitter)".
	maxAttempts      = 3
	requestTotalCap  = 5 * time.Second
	staggerThreshold = 100
	staggerWindow    = 500 * time.Millisecond
)

var backoffSchedule = []time.Duration{50 * time.Millisecond, 100 * time.Millisecond, 150 * time.Millisecond}

// RemoteStrategy scrapes GET /metrics from every host URL in its
// configuration and parses the Prometheus body back into HostSnapshots,
// forming the "view mode" aggregation path.
type RemoteStrategy struct {
	client *http.Client
	logger *zap.Logger
}

// NewRemoteStrategy builds a RemoteStrategy with a connection-pooled HTTP
// client (spec 4.7: "shared pool (default 200 idle per host, TCP
// keepalive on)").
func NewRemoteStrategy(logger *zap.Logger) *RemoteStrategy {
	if logger == nil {
		logger = zap.NewNop()
	}
	rt := &http.Transport{
		MaxIdleConnsPerHost: 200,
		IdleConnTimeout:     90 * time.Second,
		DisableKeepAlives:   false,
	}
	return &RemoteStrategy{
		client: &http.Client{Transport: rt, Timeout: requestTotalCap},
		logger: logger,
	}
}

func (s *RemoteStrategy) StrategyName() string { return "remote" }

// Collect scrapes every host in cfg.HostURLs concurrently, bounded by
// cfg.Concurrency (or DefaultRemoteConcurrency), staggering request
// starts once the host count exceeds 100 to avoid listen-queue overflow
// on the scraped side.
func (s *RemoteStrategy) Collect(ctx context.Context, cfg contracts.CollectionConfig) (contracts.CollectionData, error) {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultRemoteConcurrency
	}
	sem := semaphore.NewWeighted(int64(concurrency))

	results := make(map[string]model.HostSnapshot, len(cfg.HostURLs))
	var mu sync.Mutex
	var wg sync.WaitGroup

	stagger := len(cfg.HostURLs) > staggerThreshold

	for i, rawURL := range cfg.HostURLs {
		hostURL, err := transport.ValidateHostURL(rawURL, cfg.AllowPrivateTargets)
		if err != nil {
			s.logger.Warn("rejecting host URL", zap.String("url", rawURL), zap.Error(err))
			continue
		}

		i, hostURL := i, hostURL
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			if stagger {
				window := time.Duration(i/staggerThreshold) * staggerWindow
				select {
				case <-time.After(window):
				case <-ctx.Done():
					return
				}
			}

			snap, err := s.scrapeOne(ctx, hostURL, cfg)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.logger.Debug("scrape failed", zap.String("url", hostURL), zap.Error(err))
				results[hostURL] = model.HostSnapshot{
					HostID:      hostURL,
					FetchStatus: model.FetchErrWithReason,
					StatusError: err.Error(),
					LastUpdated: time.Now(),
				}
				return
			}
			for id, hs := range snap {
				results[id] = hs
			}
		}()
	}

	wg.Wait()
	return contracts.CollectionData{Snapshots: results}, nil
}

// scrapeOne performs the retry-with-backoff GET against one host's
// /metrics endpoint and parses the response into HostSnapshots.
func (s *RemoteStrategy) scrapeOne(ctx context.Context, hostURL string, cfg contracts.CollectionConfig) (map[string]model.HostSnapshot, error) {
	target := hostURL + "/metrics"

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := backoffSchedule[attempt-1]
			jitter := time.Duration(rand.Int63n(int64(delay) / 2))
			select {
			case <-time.After(delay + jitter):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		body, err := s.doRequest(ctx, target, cfg)
		if err != nil {
			if isFailFast(err) {
				return nil, err
			}
			lastErr = err
			continue
		}

		samples := parser.ParsePrometheusText(body, s.logger)
		return parser.ToHostSnapshots(samples, time.Now()), nil
	}
	return nil, fmt.Errorf("scrape of %s: %w", target, lastErr)
}

type failFastError struct{ status int }

func (e *failFastError) Error() string { return fmt.Sprintf("auth rejected with status %d", e.status) }

func isFailFast(err error) bool {
	_, ok := err.(*failFastError)
	return ok
}

func (s *RemoteStrategy) doRequest(ctx context.Context, target string, cfg contracts.CollectionConfig) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	if cfg.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.AuthToken)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, &failFastError{status: resp.StatusCode}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	maxBytes := cfg.MaxResponseBytes
	if maxBytes <= 0 {
		maxBytes = parser.MaxPrometheusBytes
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
}

// Apply merges every scraped host snapshot into state, marking hosts that
// failed this cycle as stale rather than discarding their last good data
// (spec 7: "the previous snapshot is retained but marked stale").
func (s *RemoteStrategy) Apply(state contracts.StateWriter, data contracts.CollectionData) {
	for hostID, snap := range data.Snapshots {
		if snap.FetchStatus == model.FetchErrWithReason {
			state.MarkStale(hostID, snap.StatusError)
			continue
		}
		state.ApplySnapshot(hostID, snap)
	}
}
