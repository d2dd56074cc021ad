// Package ratelimit provides a sliding-window rate limiter keyed by
// client IP, used to gate WebSocket upgrade attempts during reconnect
// storms.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter allows at most max events per key within the window.
type Limiter struct {
	mu     sync.Mutex
	hits   map[string][]time.Time
	max    int
	window time.Duration
}

// New creates a Limiter allowing max events per window for each key.
func New(max int, window time.Duration) *Limiter {
	return &Limiter{
		hits:   make(map[string][]time.Time),
		max:    max,
		window: window,
	}
}

// Allow reports whether the key is under its limit, recording the event
// when it is. Expired entries are pruned as a side effect.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-l.window)

	recent := l.hits[key][:0]
	for _, t := range l.hits[key] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= l.max {
		l.hits[key] = recent
		return false
	}

	l.hits[key] = append(recent, now)
	return true
}

// Reset forgets all recorded events for a key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	delete(l.hits, key)
	l.mu.Unlock()
}
