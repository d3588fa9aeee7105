package notifications

import (
	"sync"
	"time"
)

// Limiter admits at most one notification per key per interval.
type Limiter struct {
	interval time.Duration

	mu   sync.Mutex
	last map[string]time.Time
}

// NewLimiter returns a limiter with the given interval. A non-positive
// interval admits everything.
func NewLimiter(interval time.Duration) *Limiter {
	return &Limiter{interval: interval, last: make(map[string]time.Time)}
}

// Allow reports whether a notification for key may be sent at now, and
// records it when it may.
func (l *Limiter) Allow(key string, now time.Time) bool {
	if l == nil || l.interval <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if prev, ok := l.last[key]; ok && now.Sub(prev) < l.interval {
		return false
	}
	l.last[key] = now
	return true
}
