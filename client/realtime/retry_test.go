package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff(t *testing.T) {
	t.Run("grows and caps without jitter", func(t *testing.T) {
		b := &Backoff{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}
		want := []time.Duration{100, 200, 400, 800, 1000, 1000}
		for attempt, ms := range want {
			delay, ok := b.NextDelay(attempt, nil)
			assert.True(t, ok)
			assert.Equal(t, ms*time.Millisecond, delay, "attempt %d", attempt)
		}
	})

	t.Run("jitter stays within bounds", func(t *testing.T) {
		b := NewBackoff()
		for i := 0; i < 50; i++ {
			delay, ok := b.NextDelay(1, nil)
			assert.True(t, ok)
			assert.GreaterOrEqual(t, delay, 800*time.Millisecond)
			assert.LessOrEqual(t, delay, 1200*time.Millisecond)
		}
	})

	t.Run("stops after max retries", func(t *testing.T) {
		b := &Backoff{InitialDelay: time.Millisecond, MaxDelay: time.Second, Multiplier: 2, MaxRetries: 2}
		_, ok := b.NextDelay(1, nil)
		assert.True(t, ok)
		delay, ok := b.NextDelay(2, nil)
		assert.False(t, ok)
		assert.Zero(t, delay)
	})
}
