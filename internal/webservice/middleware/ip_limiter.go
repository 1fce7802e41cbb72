// Package middleware holds the HTTP middlewares wrapping the web service routes.
package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// IPLimiter rate limits requests per client IP, each IP owning a token bucket.
type IPLimiter struct {
	rate  rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*client
	now      func() time.Time
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewIPLimiter creates an IPLimiter allowing r requests per second per IP, with bursts of b.
// A non positive r disables limiting.
func NewIPLimiter(r rate.Limit, b int) *IPLimiter {
	return &IPLimiter{
		rate:     r,
		burst:    b,
		limiters: make(map[string]*client),
		now:      time.Now,
	}
}

func (l *IPLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.limiters[ip]
	if !ok {
		c = &client{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[ip] = c
	}
	c.lastSeen = l.now()
	return c.limiter.Allow()
}

// Forget drops the buckets of the IPs not seen for idle, returning how many were dropped.
func (l *IPLimiter) Forget(idle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-idle)
	var n int
	for ip, c := range l.limiters {
		if c.lastSeen.Before(cutoff) {
			delete(l.limiters, ip)
			n++
		}
	}
	return n
}

// RateLimitMiddleware answers 429 to the clients over their rate.
func (l *IPLimiter) RateLimitMiddleware(next http.Handler) http.Handler {
	if l.rate <= 0 {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			http.Error(w, "Unable to determine IP", http.StatusBadRequest)
			return
		}
		if !l.allow(ip) {
			slog.Debug("Rate limit exceeded", "ip", ip, "path", r.URL.Path)
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}
