package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	mu         sync.Mutex
	calls      int32
	lastCount  int
	identities []string
}

func (s *fakeSink) SendSecurityAlert(_ context.Context, count int, _ time.Time, identities []string) error {
	atomic.AddInt32(&s.calls, 1)
	s.mu.Lock()
	s.lastCount = count
	s.identities = identities
	s.mu.Unlock()
	return nil
}

func (s *fakeSink) alertCount() int {
	return int(atomic.LoadInt32(&s.calls))
}

func TestDetectorAlertsAtThreshold(t *testing.T) {
	now := time.Now()
	sink := &fakeSink{}
	detector := NewDetector(sink, fixedClock(now))
	ctx := context.Background()

	for i := 0; i < 59; i++ {
		detector.Record(ctx, fmt.Sprintf("10.0.0.%d", i%5), now)
	}
	require.Equal(t, 0, sink.alertCount(), "below threshold, no alert")

	detector.Record(ctx, "10.0.0.99", now)
	assert.Equal(t, 1, sink.alertCount(), "60th attempt trips the alert")
	assert.Equal(t, 60, sink.lastCount)
	assert.Len(t, sink.identities, 6, "alert carries the distinct identity set")
}

func TestDetectorSuppressesAlertsWithinCooldown(t *testing.T) {
	current := time.Now()
	sink := &fakeSink{}
	detector := NewDetector(sink, func() time.Time { return current })
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		detector.Record(ctx, "10.0.0.1", current)
	}
	require.Equal(t, 1, sink.alertCount())

	// still bursting one second later; cooldown swallows it
	current = current.Add(time.Second)
	detector.Record(ctx, "10.0.0.2", current)
	assert.Equal(t, 1, sink.alertCount(), "no second alert within cooldown")
}

func TestDetectorAlertsAgainAfterCooldown(t *testing.T) {
	current := time.Now()
	sink := &fakeSink{}
	detector := NewDetector(sink, func() time.Time { return current })
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		detector.Record(ctx, "10.0.0.1", current)
	}
	require.Equal(t, 1, sink.alertCount())

	// the burst keeps going past the cooldown
	current = current.Add(alertCooldown + time.Second)
	for i := 0; i < 60; i++ {
		detector.Record(ctx, "10.0.0.1", current)
	}
	assert.Equal(t, 2, sink.alertCount(), "exactly one more alert after cooldown")
}

func TestDetectorPrunesOutsideBurstWindow(t *testing.T) {
	current := time.Now()
	sink := &fakeSink{}
	detector := NewDetector(sink, func() time.Time { return current })
	ctx := context.Background()

	for i := 0; i < 59; i++ {
		detector.Record(ctx, "10.0.0.1", current)
	}

	// the old attempts age out before the next one arrives
	current = current.Add(burstWindow + time.Second)
	detector.Record(ctx, "10.0.0.1", current)
	assert.Equal(t, 0, sink.alertCount(), "pruned attempts do not count toward the burst")
}

func TestDetectorNeverBlocksTheTriggeringAttempt(t *testing.T) {
	now := time.Now()
	sink := &fakeSink{}
	detector := NewDetector(sink, fixedClock(now))
	ctx := context.Background()

	// Record has no return value: detection is advisory and cannot deny
	for i := 0; i < 200; i++ {
		detector.Record(ctx, "10.0.0.1", now)
	}
	assert.Equal(t, 1, sink.alertCount())
}

func TestDetectorCooldownCASUnderConcurrency(t *testing.T) {
	now := time.Now()
	sink := &fakeSink{}
	detector := NewDetector(sink, fixedClock(now))
	ctx := context.Background()

	for i := 0; i < 59; i++ {
		detector.Record(ctx, "10.0.0.1", now)
	}

	// many goroutines cross the threshold at once; the CAS lets only one
	// of them alert
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			detector.Record(ctx, fmt.Sprintf("10.1.0.%d", n), now)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, sink.alertCount(), "concurrent bursts must not double-alert")
}
