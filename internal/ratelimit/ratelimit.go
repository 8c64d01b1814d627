// Package ratelimit implements the fixed-window attempt counter that guards
// credential validation. State is process-local and resets on restart, which
// is acceptable for a single-instance deployment but does not hold across
// replicas; multi-instance deployments need a shared store behind the same
// interface.
package ratelimit

import (
	"sync"
	"time"
)

type window struct {
	count int
	start time.Time
}

// Limiter counts requests per key inside a fixed time window. The check and
// the increment happen in one critical section, so two concurrent attempts
// for the same key can never both observe the pre-increment count.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(l *Limiter) {
		if fn != nil {
			l.now = fn
		}
	}
}

// New constructs an empty Limiter.
func New(opts ...Option) *Limiter {
	l := &Limiter{
		windows: make(map[string]*window),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow reports whether one more request is permitted for key. Malformed
// parameters fail closed: an empty key, a non-positive maximum or a
// non-positive window reject the call rather than disabling throttling.
func (l *Limiter) Allow(key string, maxRequests int, windowLen time.Duration) bool {
	if key == "" || maxRequests <= 0 || windowLen <= 0 {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= windowLen {
		l.windows[key] = &window{count: 1, start: now}
		return true
	}
	allowed := w.count < maxRequests
	w.count++
	return allowed
}

// Reset drops the window for key, re-arming the limiter immediately.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, key)
}

// Sweep removes windows whose start is older than ttl. Callers typically run
// it from a ticker goroutine to keep the map from growing unbounded.
func (l *Limiter) Sweep(ttl time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for key, w := range l.windows {
		if now.Sub(w.start) > ttl {
			delete(l.windows, key)
		}
	}
}

// Janitor starts a background sweep loop and returns a stop function.
func (l *Limiter) Janitor(interval, ttl time.Duration) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				l.Sweep(ttl)
			case <-done:
				return
			}
		}
	}()
	return func() {
		ticker.Stop()
		close(done)
	}
}
