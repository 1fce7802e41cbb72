package middleware

import "time"

// SetNow overrides the clock used to track client activity.
func (l *IPLimiter) SetNow(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// Tracked returns the number of IPs currently holding a bucket.
func (l *IPLimiter) Tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}
