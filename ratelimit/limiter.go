// Package ratelimit implements a per-token sliding-window request limiter.
//
// State is in memory only. A token's history is the list of accepted call
// timestamps still inside the trailing window; rejected calls are not
// recorded, so a client hammering the service cannot extend its own lockout.
package ratelimit

import (
	"sync"
	"time"
)

// Default limiter settings.
const (
	DefaultWindow  = 60 * time.Second
	DefaultCeiling = 6
)

// Limiter admits at most Ceiling calls per token in any trailing Window.
type Limiter struct {
	window  time.Duration
	ceiling int
	nowFn   func() time.Time

	mu      sync.Mutex
	history map[string][]time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces the wall clock. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.nowFn = now }
}

// New creates a Limiter. Non-positive values fall back to the defaults.
func New(window time.Duration, ceiling int, opts ...Option) *Limiter {
	if window <= 0 {
		window = DefaultWindow
	}
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}
	l := &Limiter{
		window:  window,
		ceiling: ceiling,
		nowFn:   time.Now,
		history: make(map[string][]time.Time),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow reports whether token may proceed now, recording the call if so.
func (l *Limiter) Allow(token string) bool {
	now := l.nowFn()

	l.mu.Lock()
	defer l.mu.Unlock()

	kept := prune(l.history[token], now, l.window)
	if len(kept) >= l.ceiling {
		l.history[token] = kept
		return false
	}
	l.history[token] = append(kept, now)
	return true
}

// Sweep drops tokens whose history has fully decayed.
// Returns the number of tokens removed.
func (l *Limiter) Sweep() int {
	now := l.nowFn()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for token, ts := range l.history {
		kept := prune(ts, now, l.window)
		if len(kept) == 0 {
			delete(l.history, token)
			removed++
			continue
		}
		l.history[token] = kept
	}
	return removed
}

// Tracked returns the number of tokens with live history.
func (l *Limiter) Tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.history)
}

// prune keeps timestamps younger than window. ts is in ascending order.
func prune(ts []time.Time, now time.Time, window time.Duration) []time.Time {
	i := 0
	for i < len(ts) && now.Sub(ts[i]) >= window {
		i++
	}
	if i == 0 {
		return ts
	}
	return append(ts[:0], ts[i:]...)
}
