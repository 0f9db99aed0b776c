package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"ticket-service/internal/util"

	"go.uber.org/zap"
)

const (
	burstWindow    = 60 * time.Second
	burstThreshold = 60
	alertCooldown  = 15 * time.Minute
)

// AlertSink receives security alerts raised by the detector.
type AlertSink interface {
	SendSecurityAlert(ctx context.Context, count int, detectedAt time.Time, identities []string) error
}

type globalAttempt struct {
	at       time.Time
	identity string
}

// Detector watches payment attempts across all identities and raises an
// operator alert when a burst exceeds the threshold. It is purely advisory:
// it never denies the attempt that tripped it.
type Detector struct {
	mu       sync.Mutex
	attempts []globalAttempt

	// unix nanos of the last alert, 0 = never. Compare-and-swap so two
	// concurrent bursts cannot both pass the cooldown check.
	lastAlert atomic.Int64

	sink   AlertSink
	logger *zap.Logger
	now    func() time.Time
}

// NewDetector creates a detector reporting to sink. now may be nil.
func NewDetector(sink AlertSink, now func() time.Time) *Detector {
	if now == nil {
		now = time.Now
	}
	return &Detector{
		sink:   sink,
		logger: util.GetLogger(),
		now:    now,
	}
}

// Record notes one attempt, prunes the burst window, and alerts the sink if
// the window holds at least the threshold and the cooldown has elapsed.
// Within the cooldown a saturated window is a no-op: suppressing repeat
// alerts is intentional, not missed detection.
func (d *Detector) Record(ctx context.Context, identity string, at time.Time) {
	count, identities := d.observe(identity, at)
	if count < burstThreshold {
		return
	}

	now := d.now()
	prev := d.lastAlert.Load()
	if prev != 0 && now.Sub(time.Unix(0, prev)) <= alertCooldown {
		return
	}
	if !d.lastAlert.CompareAndSwap(prev, now.UnixNano()) {
		// another burst won the race and alerted first
		return
	}

	util.AnomalyAlertsTotal.Inc()
	d.logger.Warn("Payment attempt burst detected",
		zap.Int("attempts", count),
		zap.Int("identities", len(identities)))

	if err := d.sink.SendSecurityAlert(ctx, count, now, identities); err != nil {
		d.logger.Error("Failed to send security alert", zap.Error(err))
	}
}

// observe appends the attempt under the lock and returns the current window
// count plus the distinct identities in it.
func (d *Detector) observe(identity string, at time.Time) (int, []string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	cutoff := d.now().Add(-burstWindow)
	kept := d.attempts[:0]
	for _, a := range d.attempts {
		if a.at.After(cutoff) {
			kept = append(kept, a)
		}
	}
	d.attempts = append(kept, globalAttempt{at: at, identity: identity})

	seen := make(map[string]struct{}, len(d.attempts))
	identities := make([]string, 0, len(d.attempts))
	for _, a := range d.attempts {
		if _, ok := seen[a.identity]; ok {
			continue
		}
		seen[a.identity] = struct{}{}
		identities = append(identities, a.identity)
	}
	return len(d.attempts), identities
}
