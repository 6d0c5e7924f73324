package eventually

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/jpalmerr/eventually/internal/workpool"
)

// KeepTrying invokes probe until it yields a present value or the scaled
// timeout passes, pausing between attempts (250ms by default, see
// [WithDelay]).
//
// A present value is returned as soon as it appears. Failed attempts are
// retried; only the final one is reported. Every failure surfaces as a
// [*PollTimeoutError] whose Cause is the last attempt's error, if that
// attempt failed, except that an [*InterruptedError] is returned as is.
//
// KeepTrying tries exactly once, without waiting, when:
//
//   - the scaled timeout is shorter than a millisecond (including a time
//     scale of 0 or NaN)
//   - ctx comes from the probe of another running poll; the nested call's
//     own timeout is ignored so that composed waits do not add up
//
// In debug mode the timeout never expires; only a [Permanent] failure or an
// interruption ends the poll.
//
// Example:
//
//	banner, err := eventually.KeepTrying(ctx, e, 5*time.Second,
//	    eventually.Try(func(ctx context.Context) (*Element, error) {
//	        return page.Find(ctx, ".banner")
//	    }),
//	)
func KeepTrying[T any](ctx context.Context, e *Engine, timeout time.Duration, probe Probe[T], opts ...PollOption) (T, error) {
	e = orDefault(e)
	return keepTrying(ctx, e, e.pollOptions(callSite(1), opts), timeout, probe)
}

// WaitUntil polls cond until it reports true, with the same rules as
// [KeepTrying].
func WaitUntil(ctx context.Context, e *Engine, timeout time.Duration, cond func(ctx context.Context) (bool, error), opts ...PollOption) error {
	e = orDefault(e)
	_, err := keepTrying(ctx, e, e.pollOptions(callSite(1), opts), timeout, Check(cond))
	return err
}

func (e *Engine) pollOptions(site string, opts []PollOption) pollOptions {
	po := pollOptions{delay: e.pollDelay, op: site}
	for _, o := range opts {
		o(&po)
	}
	return po
}

// pollState is shared between the waiting caller and the loop, which may
// outlive it after a hard timeout.
type pollState struct {
	start    time.Time
	attempts atomic.Int64
}

func (s *pollState) timeout(op string, b Budget, cause error) *PollTimeoutError {
	return &PollTimeoutError{
		Op:       op,
		Timeout:  b,
		Attempts: int(s.attempts.Load()),
		Elapsed:  time.Since(s.start),
		Cause:    cause,
	}
}

func keepTrying[T any](ctx context.Context, e *Engine, po pollOptions, timeout time.Duration, probe Probe[T]) (T, error) {
	var zero T

	if err := interruptedBy(ctx, po.op); err != nil {
		return zero, err
	}

	if Nested(ctx) {
		return tryOnce(ctx, e, po.op, Budget{}, probe)
	}

	b := e.settings.Scale(timeout)
	inner := enterPoll(ctx)
	if b.Immediate() {
		return tryOnce(inner, e, po.op, b, probe)
	}

	state := &pollState{start: time.Now()}
	bound := b.Add(e.settings.ScaleDelay(e.hardGrace))
	v, err := callWithBudget(ctx, e, po.op, bound, func(context.Context) (T, error) {
		return pollLoop(inner, e, po, b, probe, state)
	})

	var ht *HardTimeoutError
	if errors.As(err, &ht) {
		// the probe is stuck; report it like any other expired poll
		return zero, state.timeout(po.op, b, ht)
	}
	return v, err
}

func tryOnce[T any](ctx context.Context, e *Engine, op string, b Budget, probe Probe[T]) (T, error) {
	var zero T
	start := time.Now()

	out := invoke(ctx, e, probe)
	if v, ok := out.Get(); ok {
		return v, nil
	}

	err := out.Err()
	if interrupted(err) {
		return zero, err
	}
	return zero, &PollTimeoutError{
		Op:       op,
		Timeout:  b,
		Attempts: 1,
		Elapsed:  time.Since(start),
		Cause:    err,
	}
}

func pollLoop[T any](ctx context.Context, e *Engine, po pollOptions, b Budget, probe Probe[T], state *pollState) (T, error) {
	var zero T
	deadline, bounded := b.Deadline(state.start)

	for {
		out := invoke(ctx, e, probe)
		n := state.attempts.Add(1)

		if v, ok := out.Get(); ok {
			e.logger.Debug("poll succeeded",
				"op", po.op,
				"attempts", n,
				"elapsed", time.Since(state.start).String(),
			)
			return v, nil
		}

		err := out.Err()
		if interrupted(err) {
			return zero, err
		}
		if err != nil && isPermanent(err) {
			return zero, state.timeout(po.op, b, err)
		}
		if bounded && !time.Now().Before(deadline) {
			return zero, state.timeout(po.op, b, err)
		}

		if err != nil {
			e.logger.Debug("probe failed, retrying",
				"op", po.op,
				"attempt", n,
				"error", err.Error(),
			)
		}

		if err := sleep(ctx, po.op, e.settings.ScaleDelay(po.delay)); err != nil {
			return zero, err
		}
	}
}

// invoke runs probe once, turning a panic into a failed Outcome.
func invoke[T any](ctx context.Context, e *Engine, probe Probe[T]) Outcome[T] {
	res := workpool.Call(e.pool, func() (Outcome[T], error) {
		return probe(ctx), nil
	})
	if res.Err != nil {
		return Failed[T](res.Err)
	}
	return res.Value
}
