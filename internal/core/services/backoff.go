package services

import (
	"context"
	"math/rand/v2"
	"time"
)

// Backoff computes jittered exponential delays for stage and sub-batch
// retries.
type Backoff struct {
	// Base is the first retry's delay.
	Base time.Duration

	// Max caps the delay growth.
	Max time.Duration

	// Jitter, between 0 and 1, is the random fraction added on top of
	// the exponential delay to spread out retry storms.
	Jitter float64
}

// DefaultBackoff is the retry policy used when none is configured.
var DefaultBackoff = Backoff{
	Base:   500 * time.Millisecond,
	Max:    30 * time.Second,
	Jitter: 0.25,
}

// Delay returns the wait before retry number attempt (0-based).
func (b Backoff) Delay(attempt int) time.Duration {
	base := b.Base
	if base <= 0 {
		base = DefaultBackoff.Base
	}
	max := b.Max
	if max <= 0 {
		max = DefaultBackoff.Max
	}

	d := base << uint(attempt)
	if d > max || d <= 0 {
		d = max
	}

	if b.Jitter > 0 {
		d += time.Duration(rand.Int64N(int64(float64(d)*b.Jitter) + 1))
	}
	return d
}

// Sleep waits out the delay for attempt, returning early with the
// context's error if it is cancelled first.
func (b Backoff) Sleep(ctx context.Context, attempt int) error {
	timer := time.NewTimer(b.Delay(attempt))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
