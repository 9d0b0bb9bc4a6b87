package ratelimit

import (
	"sync"
	"time"
)

const window = 60 * time.Second

// evictEvery controls how often Allow sweeps idle clients out of the map.
const evictEvery = 1024

// Limiter bounds requests per client to a fixed number within a trailing
// 60-second sliding window. Safe for concurrent use.
type Limiter struct {
	mu        sync.Mutex
	enabled   bool
	perMinute int
	clients   map[string][]time.Time
	now       func() time.Time
	lookups   int
}

// New constructs a Limiter. When enabled is false, Allow always admits and
// keeps no state.
func New(enabled bool, perMinute int) *Limiter {
	return &Limiter{
		enabled:   enabled,
		perMinute: perMinute,
		clients:   make(map[string][]time.Time),
		now:       time.Now,
	}
}

// SetClock replaces the time source. Tests use this to advance the window
// without sleeping.
func (l *Limiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// Allow reports whether clientID may issue a request now. Admitted requests
// are recorded against the window; rejected ones are not.
func (l *Limiter) Allow(clientID string) bool {
	if !l.enabled {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-window)

	ts := l.clients[clientID]
	// Prune stale timestamps in place; ts is ordered, so find the first
	// entry still inside the window.
	keep := 0
	for keep < len(ts) && ts[keep].Before(cutoff) {
		keep++
	}
	ts = ts[keep:]

	if len(ts) >= l.perMinute {
		l.clients[clientID] = ts
		return false
	}
	l.clients[clientID] = append(ts, now)

	l.lookups++
	if l.lookups%evictEvery == 0 {
		l.evictIdleLocked(cutoff)
	}
	return true
}

// evictIdleLocked removes clients with no activity inside the window.
// Correctness does not depend on this; it only bounds map growth.
func (l *Limiter) evictIdleLocked(cutoff time.Time) {
	for id, ts := range l.clients {
		if len(ts) == 0 || !ts[len(ts)-1].After(cutoff) {
			delete(l.clients, id)
		}
	}
}

// EvictIdle removes clients with no requests inside the current window.
func (l *Limiter) EvictIdle() {
	if !l.enabled {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.evictIdleLocked(l.now().Add(-window))
}

// Tracked returns the number of clients currently held in the window map.
func (l *Limiter) Tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}
