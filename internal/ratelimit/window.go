// Package ratelimit provides the client-side admission gate: a sliding-window
// request budget checked before any outbound exchange call. It is stricter
// than and independent of server-side throttling; its purpose is to fail fast
// locally instead of generating exchange rate-limit errors that would then
// have to be retried.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/quantfold/futbot/internal/domain"
)

// Window is an in-process sliding-window limiter: at most maxRequests
// admissions per window. Entries are pruned lazily on each admission check,
// and the lock is held only for the duration of that check, never across a
// network call.
type Window struct {
	maxRequests int
	window      time.Duration

	mu       sync.Mutex
	requests []time.Time

	// now is swapped in tests.
	now func() time.Time
}

// NewWindow creates a limiter admitting maxRequests per window.
func NewWindow(maxRequests int, window time.Duration) *Window {
	return &Window{
		maxRequests: maxRequests,
		window:      window,
		now:         time.Now,
	}
}

// TryAcquire admits and records a request if the budget allows. It never
// blocks.
func (w *Window) TryAcquire(_ context.Context) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.prune(now)

	if len(w.requests) >= w.maxRequests {
		return false
	}
	w.requests = append(w.requests, now)
	return true
}

// TimeUntilNextSlot returns how long until an admission could succeed. Zero
// means a slot is free now.
func (w *Window) TimeUntilNextSlot(_ context.Context) time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.prune(now)

	if len(w.requests) < w.maxRequests {
		return 0
	}
	// The oldest recorded request is the next to fall out of the window.
	return w.requests[0].Add(w.window).Sub(now)
}

// prune drops entries older than the window. Must be called with the lock
// held. requests stays ordered, so the retained suffix starts at the first
// still-live entry.
func (w *Window) prune(now time.Time) {
	cutoff := now.Add(-w.window)
	i := 0
	for i < len(w.requests) && !w.requests[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.requests = append(w.requests[:0], w.requests[i:]...)
	}
}

var _ domain.AdmissionGate = (*Window)(nil)
