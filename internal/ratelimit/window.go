// ABOUTME: Thread-safe sliding-window rate limiter keyed by string.
// ABOUTME: Used to bound per-tool call rates and client-side upstream request rates.

package ratelimit

import (
	"sync"
	"time"
)

// Window is a sliding-window rate limiter. Each key gets an independent
// window of the configured duration; Allow records the event when permitted.
type Window struct {
	mu     sync.Mutex
	events map[string][]time.Time
	window time.Duration
	now    func() time.Time
}

// New creates a Window with the given duration.
func New(window time.Duration) *Window {
	return &Window{
		events: make(map[string][]time.Time),
		window: window,
		now:    time.Now,
	}
}

// Allow reports whether another event for key is permitted under the given
// per-window limit, and records it if so. A limit <= 0 means unlimited.
func (w *Window) Allow(key string, limit int) bool {
	if limit <= 0 {
		return true
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	cutoff := now.Add(-w.window)

	kept := w.events[key][:0]
	for _, t := range w.events[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= limit {
		w.events[key] = kept
		return false
	}

	w.events[key] = append(kept, now)
	return true
}

// Count returns the number of events for key still inside the window.
func (w *Window) Count(key string) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := w.now().Add(-w.window)
	n := 0
	for _, t := range w.events[key] {
		if t.After(cutoff) {
			n++
		}
	}
	return n
}

// Reset clears all recorded events for key.
func (w *Window) Reset(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.events, key)
}
