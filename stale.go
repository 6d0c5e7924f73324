package eventually

import (
	"context"
	"errors"

	"github.com/jpalmerr/eventually/internal/workpool"
)

// RetryOnStale runs op and, when it fails with [ErrStale], runs it again
// after a short pause, up to a fixed number of attempts (3 by default, see
// [WithAttempts] and [WithStaleRetry]).
//
// Staleness is a race with a concurrent change of the observed structure,
// not a "not ready yet" condition, so there is no deadline: only the attempt
// count bounds the retries. Once attempts are exhausted the last stale error
// is returned unchanged. In debug mode attempts are not counted.
//
// Any other failure ends the call at once: this package's own errors are
// returned as is, even when a stale reference caused them (an expired
// [KeepTrying] is not polled again), and anything else, including a panic,
// is wrapped in an [*UnexpectedError].
func RetryOnStale[T any](ctx context.Context, e *Engine, op func(ctx context.Context) (T, error), opts ...RetryOption) (T, error) {
	e = orDefault(e)
	return retryOnStale(ctx, e, e.retryOptions(callSite(1), opts), op)
}

// RetryOnStaleDo is [RetryOnStale] for operations that return only an error.
func RetryOnStaleDo(ctx context.Context, e *Engine, op func(ctx context.Context) error, opts ...RetryOption) error {
	e = orDefault(e)
	_, err := retryOnStale(ctx, e, e.retryOptions(callSite(1), opts), func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

func (e *Engine) retryOptions(site string, opts []RetryOption) retryOptions {
	ro := retryOptions{attempts: e.staleAttempts, delay: e.staleDelay, op: site}
	for _, o := range opts {
		o(&ro)
	}
	if ro.attempts < 1 {
		ro.attempts = 1
	}
	return ro
}

func retryOnStale[T any](ctx context.Context, e *Engine, ro retryOptions, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attemptsLeft := ro.attempts

	for attempt := 1; ; attempt++ {
		if err := interruptedBy(ctx, ro.op); err != nil {
			return zero, err
		}

		res := workpool.Call(e.pool, func() (T, error) { return op(ctx) })
		if res.Err == nil {
			return res.Value, nil
		}

		err := res.Err
		if ownError(err) || !errors.Is(err, ErrStale) {
			return zero, classify(ro.op, err)
		}

		if !e.settings.Debug() {
			attemptsLeft--
		}
		if attemptsLeft <= 0 {
			e.logger.Warn("stale retries exhausted",
				"op", ro.op,
				"attempts", attempt,
				"error", err.Error(),
			)
			return zero, err
		}

		e.logger.Debug("stale reference, retrying",
			"op", ro.op,
			"attempt", attempt,
			"attempts_left", attemptsLeft,
		)
		if err := sleep(ctx, ro.op, e.settings.ScaleDelay(ro.delay)); err != nil {
			return zero, err
		}
	}
}
