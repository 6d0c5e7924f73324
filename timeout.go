package eventually

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmerr/eventually/internal/workpool"
)

// CallWithTimeout runs op and waits at most the scaled timeout for its result.
//
// If the scaled timeout is shorter than a millisecond, op runs once on the
// calling goroutine. Otherwise it runs on the worker pool while the caller
// waits. The outcomes are:
//
//   - op's value, when it finishes in time
//   - op's error unchanged, when it is already one of this package's errors
//   - an [*UnexpectedError] wrapping any other error or a panic
//   - a [*HardTimeoutError] when the budget runs out
//   - an [*InterruptedError] when ctx ends first
//
// A timed-out op is not stopped. It keeps running on the pool with the
// caller's ctx, so side effects it started may still complete later; it sees
// cancellation only if the caller's ctx is cancelled.
func CallWithTimeout[T any](ctx context.Context, e *Engine, timeout time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	e = orDefault(e)
	return callWithBudget(ctx, e, callSite(1), e.settings.Scale(timeout), op)
}

func callWithBudget[T any](ctx context.Context, e *Engine, op string, b Budget, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if err := interruptedBy(ctx, op); err != nil {
		return zero, err
	}

	if b.Immediate() {
		res := workpool.Call(e.pool, func() (T, error) { return fn(ctx) })
		if res.Err != nil {
			return zero, classify(op, res.Err)
		}
		return res.Value, nil
	}

	results := workpool.Submit(e.pool, func() (T, error) { return fn(ctx) })

	var expired <-chan time.Time
	if !b.Unbounded() {
		timer := time.NewTimer(b.Duration())
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case res := <-results:
		if res.Err != nil {
			return zero, classify(op, res.Err)
		}
		return res.Value, nil

	case <-expired:
		correlationID := uuid.NewString()
		e.logger.Warn("operation timed out, left running in background",
			"op", op,
			"timeout", b.String(),
			"correlation_id", correlationID,
		)
		return zero, &HardTimeoutError{Op: op, Timeout: b, CorrelationID: correlationID}

	case <-ctx.Done():
		return zero, &InterruptedError{Op: op, Cause: context.Cause(ctx)}
	}
}
