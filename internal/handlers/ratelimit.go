package handlers

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // unix nanos
}

// RateLimiterRegistry keeps one token bucket per client IP. Buckets unused
// for longer than the idle window are dropped by Sweep.
type RateLimiterRegistry struct {
	mu       sync.RWMutex
	limiters map[string]*limiterEntry
	limit    rate.Limit
	burst    int
	now      func() time.Time
}

// NewRateLimiterRegistry allows perSecond requests per client with the given
// burst. A non-positive rate disables limiting.
func NewRateLimiterRegistry(perSecond float64, burst int) *RateLimiterRegistry {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	return &RateLimiterRegistry{
		limiters: make(map[string]*limiterEntry),
		limit:    limit,
		burst:    burst,
		now:      time.Now,
	}
}

// GetOrCreate retrieves an existing limiter or creates a new one.
func (r *RateLimiterRegistry) GetOrCreate(key string) *rate.Limiter {
	now := r.now().UnixNano()

	r.mu.RLock()
	entry, exists := r.limiters[key]
	r.mu.RUnlock()
	if exists {
		entry.lastSeen.Store(now)
		return entry.limiter
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, exists := r.limiters[key]; exists {
		entry.lastSeen.Store(now)
		return entry.limiter
	}
	entry = &limiterEntry{limiter: rate.NewLimiter(r.limit, r.burst)}
	entry.lastSeen.Store(now)
	r.limiters[key] = entry
	return entry.limiter
}

// Len returns the number of tracked clients.
func (r *RateLimiterRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.limiters)
}

// Sweep removes limiters not used within idle and returns how many were
// removed.
func (r *RateLimiterRegistry) Sweep(idle time.Duration) int {
	cutoff := r.now().Add(-idle).UnixNano()

	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for key, entry := range r.limiters {
		if entry.lastSeen.Load() < cutoff {
			delete(r.limiters, key)
			removed++
		}
	}
	return removed
}

// Run sweeps idle limiters every interval until ctx is done.
func (r *RateLimiterRegistry) Run(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Sweep(idle)
		case <-ctx.Done():
			return
		}
	}
}

// Middleware rejects requests over the client's budget with 429. It relies on
// middleware.RealIP having normalized RemoteAddr.
func (r *RateLimiterRegistry) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		limiter := r.GetOrCreate(clientIP(req))
		if !limiter.Allow() {
			reservation := limiter.Reserve()
			delay := reservation.Delay()
			reservation.Cancel()

			w.Header().Set("Retry-After", strconv.Itoa(int((delay+time.Second-1)/time.Second)))
			writeError(w, http.StatusTooManyRequests, "Too many requests. Please try again later.")
			return
		}
		next.ServeHTTP(w, req)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
