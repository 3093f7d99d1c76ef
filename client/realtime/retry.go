package realtime

import (
	"math"
	"math/rand"
	"time"
)

// Retryer decides how long to wait before the next reconnection attempt.
type Retryer interface {
	// NextDelay is called with a 0-based attempt number. ok is false when
	// reconnecting should stop.
	NextDelay(attempt int, lastErr error) (delay time.Duration, ok bool)
	// Reset is called after a connection succeeds.
	Reset()
}

// Backoff is an exponential Retryer with optional jitter.
type Backoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64

	// MaxRetries of 0 retries forever.
	MaxRetries int
}

func NewBackoff() *Backoff {
	return &Backoff{
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2,
		JitterFactor: 0.2,
	}
}

func (b *Backoff) NextDelay(attempt int, _ error) (time.Duration, bool) {
	if b.MaxRetries > 0 && attempt >= b.MaxRetries {
		return 0, false
	}
	delay := float64(b.InitialDelay) * math.Pow(b.Multiplier, float64(attempt))
	if delay > float64(b.MaxDelay) {
		delay = float64(b.MaxDelay)
	}
	if b.JitterFactor > 0 {
		//nolint:gosec // jitter only
		delay += delay * b.JitterFactor * (2*rand.Float64() - 1)
		if delay < 0 {
			delay = float64(b.InitialDelay)
		}
	}
	return time.Duration(delay), true
}

func (b *Backoff) Reset() {}
