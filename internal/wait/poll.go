package wait

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	kwait "k8s.io/apimachinery/pkg/util/wait"
)

// Evaluator is one poll tick. It returns done=true with the resolved value
// once the condition holds, done=false while it does not yet hold, or a
// non-nil error. Errors matching PollOptions.Ignore count as "not yet";
// any other error ends the wait with a *FatalError.
type Evaluator[T any] func(ctx context.Context) (value T, done bool, err error)

// PollOptions configures a single Poll invocation.
type PollOptions struct {
	Timeout  time.Duration
	Interval time.Duration

	// Ignore lists transient errors tolerated between polls, matched with
	// errors.Is. They become fatal only by persisting past the timeout, at
	// which point the last one is attached to the *TimeoutError.
	Ignore []error

	// Condition and Target describe the wait in errors and logs.
	Condition string
	Target    string

	Logger *slog.Logger
}

func (o PollOptions) tolerates(err error) bool {
	for _, ignored := range o.Ignore {
		if errors.Is(err, ignored) {
			return true
		}
	}
	return false
}

// Poll evaluates eval immediately and then every Interval until it reports
// done, returns a non-tolerated error, or Timeout elapses. Cancellation of
// ctx ends the wait with ctx.Err().
func Poll[T any](ctx context.Context, opts PollOptions, eval Evaluator[T]) (T, error) {
	var zero T
	desc := describe(opts.Condition, opts.Target)
	if opts.Interval <= 0 {
		return zero, fmt.Errorf("wait for %s: %w", desc, ErrIntervalNotPositive)
	}
	if opts.Timeout <= 0 {
		return zero, fmt.Errorf("wait for %s: %w", desc, ErrTimeoutNotPositive)
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	var (
		result  T
		lastErr error
		fatal   error
		attempt int
	)
	start := time.Now()

	// The condition func runs sequentially, so the captured state needs no
	// synchronization.
	err := kwait.PollUntilContextTimeout(ctx, opts.Interval, opts.Timeout, true,
		func(pollCtx context.Context) (bool, error) {
			attempt++
			v, done, err := eval(pollCtx)
			if err != nil {
				// An evaluator cut short by the wait's own deadline has timed
				// out, not failed.
				if opts.tolerates(err) || (pollCtx.Err() != nil && ctx.Err() == nil) {
					lastErr = err
					return false, nil
				}
				fatal = err
				return false, err
			}
			if !done {
				return false, nil
			}
			result = v
			return true, nil
		})

	switch {
	case err == nil:
		log.Debug("wait satisfied", "condition", desc, "attempts", attempt, "elapsed", time.Since(start))
		return result, nil
	case fatal != nil:
		return zero, &FatalError{Condition: opts.Condition, Target: opts.Target, Err: fatal}
	case ctx.Err() != nil:
		return zero, fmt.Errorf("wait for %s: %w", desc, ctx.Err())
	case kwait.Interrupted(err):
		log.Debug("wait timed out", "condition", desc, "attempts", attempt, "timeout", opts.Timeout)
		return zero, &TimeoutError{
			Condition: opts.Condition,
			Target:    opts.Target,
			Timeout:   opts.Timeout,
			LastErr:   lastErr,
		}
	default:
		return zero, fmt.Errorf("wait for %s: %w", desc, err)
	}
}
