package strategy

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ritbot-go/internal/retry"
)

// Option tunes the shared loop behaviour of a runner.
type Option func(*loopOptions)

type loopOptions struct {
	backoff retry.Backoff
}

// WithBackoff sets the wait after a failed cycle.
func WithBackoff(b retry.Backoff) Option {
	return func(o *loopOptions) { o.backoff = b }
}

func buildOptions(opts []Option) loopOptions {
	o := loopOptions{backoff: retry.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// cycleLoop runs cycle every interval. A failed cycle is logged and the next
// one waits per backoff instead; the loop only ends with ctx.
func cycleLoop(ctx context.Context, log zerolog.Logger, every time.Duration, b retry.Backoff, cycle func(context.Context) error) error {
	failures := 0
	for {
		err := cycle(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		wait := every
		if err != nil {
			failures++
			wait = retry.Wait(b, failures, err)
			log.Error().Err(err).Int("failures", failures).Dur("retry_in", wait).Msg("cycle failed")
		} else {
			failures = 0
		}
		if err := retry.Sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// detached runs fire-and-forget tasks bound to the runner's root context.
// The main loop never waits on them; Wait exists for shutdown and tests.
type detached struct {
	wg  sync.WaitGroup
	log zerolog.Logger
}

func (d *detached) spawn(ctx context.Context, name string, fn func(context.Context) error) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		start := time.Now()
		if err := fn(ctx); err != nil {
			d.log.Error().Err(err).Str("task", name).Dur("after", time.Since(start)).Msg("detached task ended with error")
			return
		}
		d.log.Info().Str("task", name).Dur("took", time.Since(start)).Msg("detached task done")
	}()
}

func (d *detached) Wait() { d.wg.Wait() }
