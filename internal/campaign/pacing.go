package campaign

import (
	"math/rand"
	"time"
)

// PacingPolicy decides the pause applied after each processed recipient.
// The inter-message delay is randomized to avoid a detectable cadence; the
// batch pause is a longer fixed break every BatchSize messages.
type PacingPolicy struct {
	MinDelay   time.Duration
	MaxDelay   time.Duration
	BatchSize  int
	BatchDelay time.Duration
}

// Pause returns the delay to apply after one processed recipient, given the
// count of recipients processed in the current batch (including this one),
// and whether that delay is a batch pause.
func (p PacingPolicy) Pause(processedInBatch int) (time.Duration, bool) {
	if p.BatchSize > 0 && processedInBatch >= p.BatchSize {
		return p.BatchDelay, true
	}
	return p.randomDelay(), false
}

func (p PacingPolicy) randomDelay() time.Duration {
	lo, hi := p.MinDelay, p.MaxDelay
	if hi < lo {
		hi = lo
	}
	span := int64(hi - lo)
	if span <= 0 {
		return lo
	}
	return lo + time.Duration(rand.Int63n(span+1))
}

// MeanDelay is the expected inter-message delay, used for ETA estimates.
func (p PacingPolicy) MeanDelay() time.Duration {
	return (p.MinDelay + p.MaxDelay) / 2
}

// Estimate approximates the wall time a campaign over n recipients takes.
func (p PacingPolicy) Estimate(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	d := time.Duration(n-1) * p.MeanDelay()
	if p.BatchSize > 0 {
		d += time.Duration((n-1)/p.BatchSize) * p.BatchDelay
	}
	return d
}
