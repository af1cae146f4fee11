package transport

import (
	"net"
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// perClientRate and perClientBurst bound each client's request rate (spec
// SPEC_FULL B: "transport layer's per-client sliding-window rate limiter
// (10 req/s)").
const (
	perClientRate  rate.Limit = 10
	perClientBurst            = 10
)

// rateLimiter hands out one golang.org/x/time/rate.Limiter per client IP,
// lazily created on first sight and never evicted — the all-smi process
// serves a small, operator-controlled set of scrapers, not an open
// internet endpoint, so an unbounded-growth client map is an acceptable
// tradeoff against the complexity of an eviction policy.
type rateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newRateLimiter() *rateLimiter {
	return &rateLimiter{limiters: make(map[string]*rate.Limiter)}
}

func (rl *rateLimiter) allow(clientIP string) bool {
	rl.mu.Lock()
	lim, ok := rl.limiters[clientIP]
	if !ok {
		lim = rate.NewLimiter(perClientRate, perClientBurst)
		rl.limiters[clientIP] = lim
	}
	rl.mu.Unlock()
	return lim.Allow()
}

// middleware wraps next with per-client rate limiting, responding 429 to
// callers who exceed their bucket.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if !rl.allow(host) {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte("rate limit exceeded\n"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
