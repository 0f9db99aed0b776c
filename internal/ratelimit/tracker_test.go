package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestAdmitAllowsUnderLimit(t *testing.T) {
	now := time.Now()
	tracker := NewTracker(fixedClock(now))
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		decision, err := tracker.Admit(ctx, "1.2.3.4")
		require.NoError(t, err)
		assert.True(t, decision.Allowed)
		require.NoError(t, tracker.Record(ctx, "1.2.3.4", now))
	}

	decision, err := tracker.Admit(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, decision.Allowed, "5th attempt is still under the 5-minute limit")
}

func TestAdmitDeniesSixthAttemptInFiveMinutes(t *testing.T) {
	now := time.Now()
	tracker := NewTracker(fixedClock(now))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, tracker.Record(ctx, "1.2.3.4", now))
	}

	decision, err := tracker.Admit(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, 5*time.Minute, decision.Window)
	assert.Contains(t, decision.Message, "5 minutes")
}

func TestShortestSaturatedWindowWins(t *testing.T) {
	// saturate the hourly window too: 15 attempts, 5 of them recent
	now := time.Now()
	tracker := NewTracker(fixedClock(now))
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, tracker.Record(ctx, "1.2.3.4", now.Add(-30*time.Minute)))
	}
	for i := 0; i < 5; i++ {
		require.NoError(t, tracker.Record(ctx, "1.2.3.4", now))
	}

	decision, err := tracker.Admit(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, 5*time.Minute, decision.Window, "5-minute message wins over hourly")
}

func TestHourlyWindowDenies(t *testing.T) {
	now := time.Now()
	tracker := NewTracker(fixedClock(now))
	ctx := context.Background()

	// spread 15 attempts so no 5-minute window holds 5 of them
	for i := 0; i < 15; i++ {
		at := now.Add(-time.Duration(i*3) * time.Minute)
		require.NoError(t, tracker.Record(ctx, "1.2.3.4", at))
	}

	decision, err := tracker.Admit(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, time.Hour, decision.Window)
	assert.Contains(t, decision.Message, "Hourly")
}

func TestDailyWindowDenies(t *testing.T) {
	now := time.Now()
	tracker := NewTracker(fixedClock(now))
	ctx := context.Background()

	// 50 attempts spread over the day, sparse enough to clear the shorter
	// windows
	for i := 0; i < 50; i++ {
		at := now.Add(-time.Duration(90+i*25) * time.Minute)
		require.NoError(t, tracker.Record(ctx, "1.2.3.4", at))
	}

	decision, err := tracker.Admit(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, 24*time.Hour, decision.Window)
	assert.Contains(t, decision.Message, "Daily")
}

func TestWindowBoundaryIsExclusive(t *testing.T) {
	now := time.Now()
	tracker := NewTracker(fixedClock(now))
	ctx := context.Background()

	// 4 attempts just inside the window plus one exactly at now-5m, which
	// has aged out
	for i := 0; i < 4; i++ {
		require.NoError(t, tracker.Record(ctx, "1.2.3.4", now.Add(-time.Minute)))
	}
	require.NoError(t, tracker.Record(ctx, "1.2.3.4", now.Add(-5*time.Minute)))

	decision, err := tracker.Admit(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	// one epsilon inside the window and the count reaches the limit
	require.NoError(t, tracker.Record(ctx, "1.2.3.4", now.Add(-5*time.Minute+time.Millisecond)))

	decision, err = tracker.Admit(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
}

func TestIdentitiesAreIndependent(t *testing.T) {
	now := time.Now()
	tracker := NewTracker(fixedClock(now))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, tracker.Record(ctx, "1.2.3.4", now))
	}

	denied, err := tracker.Admit(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, denied.Allowed)

	allowed, err := tracker.Admit(ctx, "5.6.7.8")
	require.NoError(t, err)
	assert.True(t, allowed.Allowed)
}

func TestPruneDropsExpiredAttempts(t *testing.T) {
	now := time.Now()
	tracker := NewTracker(fixedClock(now))
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		require.NoError(t, tracker.Record(ctx, "1.2.3.4", now.Add(-25*time.Hour)))
	}

	decision, err := tracker.Admit(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, decision.Allowed, "attempts older than a day no longer count")

	tracker.mu.Lock()
	_, exists := tracker.attempts["1.2.3.4"]
	tracker.mu.Unlock()
	assert.False(t, exists, "fully pruned identities are removed from the map")
}

func TestTrackerConcurrentAccess(t *testing.T) {
	tracker := NewTracker(nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			identity := "10.0.0.1"
			if n%2 == 0 {
				identity = "10.0.0.2"
			}
			for j := 0; j < 50; j++ {
				if d, err := tracker.Admit(ctx, identity); err == nil && d.Allowed {
					_ = tracker.Record(ctx, identity, time.Now())
				}
			}
		}(i)
	}
	wg.Wait()

	// both identities saturated; no race or panic is the real assertion
	decision, err := tracker.Admit(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
}
