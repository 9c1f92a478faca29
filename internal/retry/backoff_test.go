package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffNextGrowsAndCaps(t *testing.T) {
	b := Backoff{Min: 100 * time.Millisecond, Max: time.Second, Factor: 2}

	assert.Equal(t, 100*time.Millisecond, b.Next(0))
	assert.Equal(t, 100*time.Millisecond, b.Next(1))
	assert.Equal(t, 200*time.Millisecond, b.Next(2))
	assert.Equal(t, 400*time.Millisecond, b.Next(3))
	assert.Equal(t, time.Second, b.Next(5))
	assert.Equal(t, time.Second, b.Next(50))
}

func TestFixedNeverGrows(t *testing.T) {
	b := Fixed(150 * time.Millisecond)
	for attempt := 1; attempt < 10; attempt++ {
		assert.Equal(t, 150*time.Millisecond, b.Next(attempt))
	}
}

func TestBackoffJitterStaysInBand(t *testing.T) {
	b := Backoff{Min: 100 * time.Millisecond, Max: 100 * time.Millisecond, Factor: 2, Jitter: 0.2}
	for i := 0; i < 100; i++ {
		d := b.Next(3)
		assert.GreaterOrEqual(t, d, 80*time.Millisecond)
		assert.LessOrEqual(t, d, 120*time.Millisecond)
	}
}

func TestForeverRetriesUntilSuccess(t *testing.T) {
	calls := 0
	var seen []int
	err := Forever(context.Background(), Fixed(time.Millisecond), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, func(attempt int, err error) {
		seen = append(seen, attempt)
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, seen)
}

func TestForeverStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := Forever(ctx, Fixed(5*time.Millisecond), func(context.Context) error {
		return errors.New("down")
	}, nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

type throttled struct{ after time.Duration }

func (e *throttled) Error() string { return "rate limited" }
func (e *throttled) RetryDelay() time.Duration { return e.after }

func TestWaitHonorsServerDelay(t *testing.T) {
	b := Fixed(10 * time.Millisecond)

	assert.Equal(t, 10*time.Millisecond, Wait(b, 1, errors.New("plain")))
	assert.Equal(t, 10*time.Millisecond, Wait(b, 1, nil))
	assert.Equal(t, 2*time.Second, Wait(b, 1, &throttled{after: 2 * time.Second}))
	assert.Equal(t, 10*time.Millisecond, Wait(b, 1, &throttled{after: time.Millisecond}))

	wrapped := fmt.Errorf("post order: %w", &throttled{after: time.Second})
	assert.Equal(t, time.Second, Wait(b, 3, wrapped))
}

func TestForeverWaitsForServerDelay(t *testing.T) {
	calls := 0
	start := time.Now()
	err := Forever(context.Background(), Fixed(time.Millisecond), func(context.Context) error {
		calls++
		if calls == 1 {
			return &throttled{after: 40 * time.Millisecond}
		}
		return nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}
