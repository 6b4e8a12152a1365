package campaign

import (
	"testing"
	"time"
)

func TestPacingPauseBatchBoundary(t *testing.T) {
	t.Parallel()
	p := PacingPolicy{
		MinDelay:   2 * time.Second,
		MaxDelay:   2 * time.Second, // deterministic
		BatchSize:  5,
		BatchDelay: time.Minute,
	}

	for i := 1; i < 5; i++ {
		d, batch := p.Pause(i)
		if batch {
			t.Fatalf("Pause(%d) flagged a batch pause", i)
		}
		if d != 2*time.Second {
			t.Fatalf("Pause(%d) = %v, want 2s", i, d)
		}
	}
	d, batch := p.Pause(5)
	if !batch || d != time.Minute {
		t.Fatalf("Pause(5) = (%v, %v), want (1m, true)", d, batch)
	}
}

func TestPacingPauseNoBatching(t *testing.T) {
	t.Parallel()
	p := PacingPolicy{MinDelay: time.Second, MaxDelay: time.Second}
	for i := 1; i <= 100; i++ {
		if _, batch := p.Pause(i); batch {
			t.Fatalf("BatchSize 0 must never produce a batch pause (i=%d)", i)
		}
	}
}

func TestRandomDelayWithinBounds(t *testing.T) {
	t.Parallel()
	p := PacingPolicy{MinDelay: 3 * time.Second, MaxDelay: 7 * time.Second}
	for i := 0; i < 1000; i++ {
		d := p.randomDelay()
		if d < p.MinDelay || d > p.MaxDelay {
			t.Fatalf("randomDelay = %v, want within [%v, %v]", d, p.MinDelay, p.MaxDelay)
		}
	}
}

func TestRandomDelayInvertedRange(t *testing.T) {
	t.Parallel()
	p := PacingPolicy{MinDelay: 5 * time.Second, MaxDelay: time.Second}
	if d := p.randomDelay(); d != 5*time.Second {
		t.Fatalf("inverted range should collapse to MinDelay, got %v", d)
	}
}

func TestEstimate(t *testing.T) {
	t.Parallel()
	p := PacingPolicy{
		MinDelay:   2 * time.Second,
		MaxDelay:   4 * time.Second,
		BatchSize:  5,
		BatchDelay: 30 * time.Second,
	}

	tests := []struct {
		name string
		n    int
		want time.Duration
	}{
		{name: "zero", n: 0, want: 0},
		{name: "single", n: 1, want: 0},
		{name: "under one batch", n: 5, want: 4 * 3 * time.Second},
		{name: "two batches", n: 12, want: 11*3*time.Second + 2*30*time.Second},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := p.Estimate(tt.n); got != tt.want {
				t.Fatalf("Estimate(%d) = %v, want %v", tt.n, got, tt.want)
			}
		})
	}
}

func TestRetryPolicyBoundsAttempts(t *testing.T) {
	t.Parallel()
	p := RetryPolicy{MaxAttempts: 3, Backoff: time.Second}

	if !p.ShouldRetry(1) || !p.ShouldRetry(2) {
		t.Fatal("attempts 1 and 2 should allow a retry")
	}
	if p.ShouldRetry(3) {
		t.Fatal("attempt 3 is the last; no retry after it")
	}
}
