// Package retry implements the never-give-up loops used against the exchange.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// Backoff grows the wait between attempts geometrically up to Max.
type Backoff struct {
	Min    time.Duration
	Max    time.Duration
	Factor float64
	Jitter float64
}

// Default returns conservative defaults for a polled REST exchange.
func Default() Backoff {
	return Backoff{
		Min:    200 * time.Millisecond,
		Max:    5 * time.Second,
		Factor: 2.0,
	}
}

// Fixed returns a backoff that always waits d.
func Fixed(d time.Duration) Backoff {
	return Backoff{Min: d, Max: d, Factor: 1}
}

// Next returns the wait for the given attempt (1-based).
func (b Backoff) Next(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	min := b.Min
	if min <= 0 {
		min = 100 * time.Millisecond
	}
	max := b.Max
	if max < min {
		max = min
	}
	factor := b.Factor
	if factor < 1 {
		factor = 1
	}

	wait := min
	for i := 1; i < attempt; i++ {
		next := time.Duration(float64(wait) * factor)
		if next >= max {
			wait = max
			break
		}
		wait = next
	}

	if b.Jitter <= 0 {
		return wait
	}
	jitter := b.Jitter
	if jitter > 1 {
		jitter = 1
	}
	delta := float64(wait) * jitter
	return wait - time.Duration(delta) + time.Duration(rand.Float64()*2*delta)
}

// delayHint is implemented by errors that carry a server-requested wait,
// such as a Retry-After header on a 429.
type delayHint interface {
	RetryDelay() time.Duration
}

// Wait is the pause before retrying after err on the given attempt: the
// backoff delay, raised to any hint found in err's chain.
func Wait(b Backoff, attempt int, err error) time.Duration {
	wait := b.Next(attempt)
	var hint delayHint
	if errors.As(err, &hint) {
		if d := hint.RetryDelay(); d > wait {
			wait = d
		}
	}
	return wait
}

// Sleep waits d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Forever calls fn until it succeeds or ctx ends, waiting per b between failures.
// onErr, when set, sees every failure with its attempt number.
func Forever(ctx context.Context, b Backoff, fn func(context.Context) error, onErr func(attempt int, err error)) error {
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if onErr != nil {
			onErr(attempt, err)
		}
		if err := Sleep(ctx, Wait(b, attempt, err)); err != nil {
			return err
		}
	}
}
