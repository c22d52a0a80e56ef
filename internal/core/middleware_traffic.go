package core

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"freshtrack/internal/types"
)

// limiterIdleEviction is how long a client key may sit unused before its
// token bucket is dropped.
const limiterIdleEviction = 10 * time.Minute

// RateLimiter enforces a per-client token bucket, keyed by client IP. It is
// designed for the callback and ingestion endpoints, where the caller
// population is small (provider infrastructure, sensor gateways) and an
// in-memory bucket per process is sufficient.
type RateLimiter struct {
	mu       sync.Mutex
	clients  map[string]*clientLimiter
	limit    rate.Limit
	burst    int
	lastSeen func() time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a RateLimiter allowing rps requests per second
// with the given burst per client.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if rps <= 0 {
		rps = 50
	}
	if burst <= 0 {
		burst = int(rps) * 2
	}
	return &RateLimiter{
		clients:  make(map[string]*clientLimiter),
		limit:    rate.Limit(rps),
		burst:    burst,
		lastSeen: time.Now,
	}
}

// Middleware rejects requests exceeding the per-client budget with 429.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(extractClientIP(r)) {
			w.Header().Set("Retry-After", "1")
			Error(w, r, types.NewAppError(types.ErrCodeRateLimit,
				"rate limit exceeded", nil))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.lastSeen()
	client, ok := rl.clients[key]
	if !ok {
		rl.evictIdleLocked(now)
		client = &clientLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[key] = client
	}
	client.lastSeen = now
	return client.limiter.Allow()
}

// evictIdleLocked drops buckets unused past the idle window. Called under
// the lock, only when a new key is added, so steady-state traffic never
// pays for the scan.
func (rl *RateLimiter) evictIdleLocked(now time.Time) {
	for key, client := range rl.clients {
		if now.Sub(client.lastSeen) > limiterIdleEviction {
			delete(rl.clients, key)
		}
	}
}

// extractClientIP returns the originating client IP, preferring the first
// X-Forwarded-For entry set by the load balancer, falling back to
// RemoteAddr.
func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx >= 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
