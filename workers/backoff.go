package workers

import (
	"time"
)

// Backoff tracks consecutive failures and yields the exponential delay
// before the next attempt: base × 2^attempts, optionally capped. The
// attempt counter itself stops growing at MaxAttempts so the delay is
// bounded even under a long outage.
type Backoff struct {
	Base        time.Duration
	Cap         time.Duration
	MaxAttempts int

	attempts int
}

// Next records one more failure and returns the delay to wait before
// retrying.
func (b *Backoff) Next() time.Duration {
	if b.attempts < b.MaxAttempts {
		b.attempts++
	}
	d := b.Base << uint(b.attempts)
	if b.Cap > 0 && d > b.Cap {
		d = b.Cap
	}
	return d
}

// Reset clears the failure streak. Any non-rate-limited response resets the
// poller this way.
func (b *Backoff) Reset() {
	b.attempts = 0
}

// Attempts returns the current consecutive-failure count.
func (b *Backoff) Attempts() int {
	return b.attempts
}

// Exhausted reports whether the failure streak has reached MaxAttempts.
func (b *Backoff) Exhausted() bool {
	return b.attempts >= b.MaxAttempts
}
