package ratelimit

import (
	"context"
	"time"

	"ticket-service/internal/redisclient"

	"github.com/google/uuid"
)

// RedisTracker is the AttemptLimiter backend for multi-instance deployments.
// All instances share the same counters, so an abuser cannot multiply their
// allowance by spreading attempts across replicas.
type RedisTracker struct {
	client  *redisclient.Client
	windows []Window
	now     func() time.Time
}

// NewRedisTracker creates a Redis-backed tracker with the standard windows.
// now may be nil, in which case time.Now is used.
func NewRedisTracker(client *redisclient.Client, now func() time.Time) *RedisTracker {
	if now == nil {
		now = time.Now
	}
	return &RedisTracker{
		client:  client,
		windows: Windows(),
		now:     now,
	}
}

// Admit runs the sliding-window check inside Redis and maps a saturated
// window index back to its user-facing message.
func (t *RedisTracker) Admit(ctx context.Context, identity string) (Decision, error) {
	pairs := make([][2]int64, len(t.windows))
	for i, w := range t.windows {
		pairs[i] = [2]int64{w.Dur.Milliseconds(), int64(w.Limit)}
	}

	idx, err := t.client.AdmitAttempt(ctx, identity, t.now(), pairs)
	if err != nil {
		return Decision{}, err
	}
	if idx == 0 {
		return Decision{Allowed: true}, nil
	}

	w := t.windows[idx-1]
	return Decision{Allowed: false, Window: w.Dur, Message: w.Message}, nil
}

// Record appends one admitted attempt.
func (t *RedisTracker) Record(ctx context.Context, identity string, at time.Time) error {
	horizon := t.windows[len(t.windows)-1].Dur.Milliseconds()
	return t.client.RecordAttempt(ctx, identity, uuid.New().String(), at, horizon)
}
