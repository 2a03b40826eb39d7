// Package ratelimit implements the in-memory, per-resource call counter used
// to cap outbound requests to the language model provider. Each resource name
// owns a fixed window that starts on the first call and resets once the
// window length has elapsed. The limiter is advisory and process local; it is
// not persisted and does not coordinate with other processes.
//
// A Limiter is an ordinary value owned by whoever constructs it. The HTTP
// server creates one at startup and injects it into the LLM gateway so there
// is no hidden package level state.
package ratelimit

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// Decision reports whether a call may proceed. When Allowed is false Message
// contains a human readable explanation and RetryAfter the time remaining in
// the current window.
type Decision struct {
	Allowed    bool
	Message    string
	RetryAfter time.Duration
}

// Window is the counter state tracked for a single resource.
type Window struct {
	Count int       `json:"count"`
	Start time.Time `json:"windowStart"`
}

// Limiter tracks one Window per resource name. The zero value is not usable;
// construct limiters with New.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*Window
	now     func() time.Time
}

// Option customises a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now. Tests use it to move time forward without
// sleeping.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New returns an empty Limiter.
func New(opts ...Option) *Limiter {
	l := &Limiter{
		windows: make(map[string]*Window),
		now:     time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Check records a call against resource and decides whether it is allowed.
// A missing or expired window starts a new one with a count of one. Within a
// live window the count is incremented and the call is allowed while the
// count does not exceed maxCalls.
func (l *Limiter) Check(resource string, maxCalls int, window time.Duration) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[resource]
	if !ok || now.Sub(w.Start) >= window {
		l.windows[resource] = &Window{Count: 1, Start: now}
		return Decision{Allowed: true}
	}

	w.Count++
	if w.Count <= maxCalls {
		return Decision{Allowed: true}
	}

	remaining := window - now.Sub(w.Start)
	seconds := int(math.Ceil(remaining.Seconds()))
	return Decision{
		Allowed:    false,
		RetryAfter: remaining,
		Message:    fmt.Sprintf("Rate limit exceeded for %s. Please wait %d seconds.", resource, seconds),
	}
}

// Reset discards the window for resource so the next call starts fresh.
func (l *Limiter) Reset(resource string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, resource)
}

// Snapshot returns a copy of every tracked window keyed by resource name.
func (l *Limiter) Snapshot() map[string]Window {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]Window, len(l.windows))
	for k, w := range l.windows {
		out[k] = *w
	}
	return out
}
