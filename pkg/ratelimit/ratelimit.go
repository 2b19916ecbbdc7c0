package ratelimit

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter applies a per-client token bucket to control surface requests.
// Each key (normally the client IP) gets its own bucket; buckets idle for
// longer than the prune age are dropped so a long-running host does not
// accumulate one bucket per client it ever saw.
type Limiter struct {
	rps   rate.Limit
	burst int

	mu      sync.Mutex
	clients map[string]*client
}

type client struct {
	bucket   *rate.Limiter
	lastSeen time.Time
}

// NewLimiter creates a limiter allowing rps requests per second with the
// given burst per client key
func NewLimiter(rps float64, burst int) *Limiter {
	return &Limiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		clients: make(map[string]*client),
	}
}

// Allow reports whether a request under the given key may proceed
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	c, ok := l.clients[key]
	if !ok {
		c = &client{bucket: rate.NewLimiter(l.rps, l.burst)}
		l.clients[key] = c
	}
	c.lastSeen = time.Now()
	l.mu.Unlock()
	return c.bucket.Allow()
}

// Prune drops client buckets idle for longer than maxAge and returns the
// number removed
func (l *Limiter) Prune(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for key, c := range l.clients {
		if c.lastSeen.Before(cutoff) {
			delete(l.clients, key)
			removed++
		}
	}
	return removed
}

// Middleware wraps a handler with rate limiting keyed by keyFunc
func (l *Limiter) Middleware(keyFunc func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(keyFunc(r)) {
				http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IPKeyFunc keys requests by client address, honoring X-Forwarded-For
// when a proxy sits in front of the host
func IPKeyFunc(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	return r.RemoteAddr
}
