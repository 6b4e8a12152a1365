package campaign

import "time"

// RetryPolicy bounds send attempts per recipient. The backoff between
// attempts is fixed: no exponential growth and no jitter, distinct from the
// randomized inter-recipient pacing.
type RetryPolicy struct {
	// MaxAttempts is the total number of send attempts per recipient.
	MaxAttempts int
	Backoff     time.Duration
}

// ShouldRetry reports whether another attempt is allowed after attemptsSoFar
// attempts have failed. Invalid recipients never reach this policy; they are
// classified upstream by the existence check.
func (p RetryPolicy) ShouldRetry(attemptsSoFar int) bool {
	return attemptsSoFar < p.MaxAttempts
}
