package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Window is one sliding admission window: at most Limit attempts within Dur.
type Window struct {
	Dur     time.Duration
	Limit   int
	Message string
}

// Windows returns the admission windows in ascending duration order. The
// order matters: when several windows are saturated at once the shortest
// window's message is the one shown to the user.
func Windows() []Window {
	return []Window{
		{Dur: 5 * time.Minute, Limit: 5, Message: "Too many payment attempts. Please wait 5 minutes before trying again."},
		{Dur: time.Hour, Limit: 15, Message: "Hourly payment attempt limit reached. Please try again later."},
		{Dur: 24 * time.Hour, Limit: 50, Message: "Daily payment attempt limit reached. Please try again tomorrow."},
	}
}

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed bool
	Window  time.Duration
	Message string
}

// AttemptLimiter decides whether a payment attempt from an identity may
// proceed, and records attempts that were admitted. Admission and recording
// are separate so a rejected attempt never counts toward its own limit.
//
// The in-memory Tracker keeps state per process; a multi-instance deployment
// can swap in the Redis-backed implementation without touching settlement.
type AttemptLimiter interface {
	Admit(ctx context.Context, identity string) (Decision, error)
	Record(ctx context.Context, identity string, at time.Time) error
}

// Tracker is the in-memory AttemptLimiter. State resets on restart and is
// not shared across instances.
type Tracker struct {
	mu       sync.Mutex
	windows  []Window
	attempts map[string][]time.Time
	now      func() time.Time
}

// NewTracker creates a tracker with the standard windows. now may be nil,
// in which case time.Now is used.
func NewTracker(now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		windows:  Windows(),
		attempts: make(map[string][]time.Time),
		now:      now,
	}
}

// Admit checks every window for the identity, shortest first, and denies
// with that window's message as soon as one is saturated. Attempts older
// than the longest window are pruned as a side effect.
func (t *Tracker) Admit(_ context.Context, identity string) (Decision, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	recent := t.pruneLocked(identity, now)

	for _, w := range t.windows {
		cutoff := now.Add(-w.Dur)
		count := 0
		for _, ts := range recent {
			// an attempt exactly at now-window has aged out
			if ts.After(cutoff) {
				count++
			}
		}
		if count >= w.Limit {
			return Decision{Allowed: false, Window: w.Dur, Message: w.Message}, nil
		}
	}

	return Decision{Allowed: true}, nil
}

// Record appends one attempt for the identity. Callers must only record
// after Admit allowed the attempt.
func (t *Tracker) Record(_ context.Context, identity string, at time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.attempts[identity] = append(t.attempts[identity], at)
	return nil
}

// pruneLocked drops attempts older than the longest window and returns the
// surviving timestamps. Empty identities are removed from the map so it does
// not grow without bound.
func (t *Tracker) pruneLocked(identity string, now time.Time) []time.Time {
	longest := t.windows[len(t.windows)-1].Dur
	cutoff := now.Add(-longest)

	kept := t.attempts[identity][:0]
	for _, ts := range t.attempts[identity] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) == 0 {
		delete(t.attempts, identity)
		return nil
	}
	t.attempts[identity] = kept
	return kept
}
