package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"multi-org-integration-platform/internal/config"
	"multi-org-integration-platform/internal/logger"
)

// RateLimiter throttles API callers with a fixed-window bucket per client.
// Clients are identified by token subject when authenticated, otherwise by
// remote address.
type RateLimiter struct {
	logger *logger.Logger

	mutex     sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time

	limit  int
	window time.Duration
	now    func() time.Time
}

type bucket struct {
	remaining   int
	windowStart time.Time
}

// NewRateLimiter creates a limiter allowing server.rate_limit_per_minute
// requests per client. A non-positive limit disables throttling.
func NewRateLimiter(cfg *config.Config, logger *logger.Logger) *RateLimiter {
	return newRateLimiter(logger, cfg.Server.RateLimitPerMinute, time.Minute, time.Now)
}

func newRateLimiter(logger *logger.Logger, limit int, window time.Duration, now func() time.Time) *RateLimiter {
	return &RateLimiter{
		logger:    logger,
		buckets:   make(map[string]*bucket),
		lastSweep: now(),
		limit:     limit,
		window:    window,
		now:       now,
	}
}

// Allow consumes one request for the client and reports whether it fits in the window
func (rl *RateLimiter) Allow(clientID string) bool {
	if rl.limit <= 0 {
		return true
	}

	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := rl.now()
	rl.sweep(now)

	b, ok := rl.buckets[clientID]
	if !ok || now.Sub(b.windowStart) >= rl.window {
		b = &bucket{remaining: rl.limit, windowStart: now}
		rl.buckets[clientID] = b
	}

	if b.remaining == 0 {
		return false
	}
	b.remaining--
	return true
}

// ActiveClients returns the number of clients with a live bucket
func (rl *RateLimiter) ActiveClients() int {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()
	return len(rl.buckets)
}

// sweep drops buckets idle for more than two windows. Caller holds the mutex.
func (rl *RateLimiter) sweep(now time.Time) {
	if now.Sub(rl.lastSweep) < 2*rl.window {
		return
	}
	cutoff := now.Add(-2 * rl.window)
	for clientID, b := range rl.buckets {
		if b.windowStart.Before(cutoff) {
			delete(rl.buckets, clientID)
		}
	}
	rl.lastSweep = now
}

// Limit rejects requests over the per-client budget with 429
func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientID := clientIdentity(r)
		if !rl.Allow(clientID) {
			rl.logger.WithField("client", clientID).Warn("Rate limit exceeded")
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIdentity(r *http.Request) string {
	if claims, ok := ClaimsFromContext(r.Context()); ok && claims.Subject != "" {
		return "sub:" + claims.Subject
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "addr:" + host
}
