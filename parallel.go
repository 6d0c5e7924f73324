package eventually

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// Parallel runs op for every index in [0, iterations) on the worker pool,
// with at most width invocations in flight at once, and returns the results
// in index order.
//
// Each invocation may take perCall * (1 + log10(width)): the extra slack
// accounts for calls competing for the same resources. The whole batch may
// take that per-call bound times iterations / width. Both bounds are scaled
// by the settings like any other timeout. A budget under a millisecond (a
// zero perCall, or a time scale of 0) means every call is tried once with no
// batch deadline.
//
// The first failure stops further admissions and is returned: op's own
// error as [CallWithTimeout] would report it, a [*HardTimeoutError] for a
// call or batch that ran out of time, or an [*InterruptedError]. Invocations
// already in flight are not stopped.
//
// Example:
//
//	rows, err := eventually.Parallel(ctx, e, 10, 2, 5*time.Second,
//	    func(ctx context.Context, i int) (string, error) {
//	        return table.RowText(ctx, i)
//	    })
func Parallel[T any](ctx context.Context, e *Engine, iterations, width int, perCall time.Duration, op func(ctx context.Context, i int) (T, error)) ([]T, error) {
	e = orDefault(e)
	site := callSite(1)

	if width <= 0 {
		return nil, fmt.Errorf("%s: width must be positive, got %d", site, width)
	}
	if iterations <= 0 {
		return []T{}, nil
	}
	if err := interruptedBy(ctx, site); err != nil {
		return nil, err
	}

	slack := 1 + math.Log10(float64(width))
	perCallBudget := e.settings.Scale(time.Duration(float64(perCall) * slack))
	total := e.settings.Scale(time.Duration(float64(perCall) * slack * float64(iterations) / float64(width)))

	batchID := uuid.NewString()
	e.logger.Debug("parallel batch started",
		"op", site,
		"batch_id", batchID,
		"iterations", iterations,
		"width", width,
		"per_call", perCallBudget.String(),
		"total", total.String(),
	)

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	// an immediate batch gets no timer; each call then runs once inline
	if !total.Unbounded() && !total.Immediate() {
		timer := time.AfterFunc(total.Duration(), func() {
			cancel(&HardTimeoutError{Op: site, Timeout: total, CorrelationID: batchID})
		})
		defer timer.Stop()
	}

	sem := semaphore.NewWeighted(int64(width))
	results := make([]T, iterations)
	var (
		wg     sync.WaitGroup
		failed atomic.Bool
	)

	admitted := 0
	for i := 0; i < iterations; i++ {
		if err := sem.Acquire(runCtx, 1); err != nil {
			break
		}
		admitted++

		i := i
		wg.Add(1)
		e.pool.Go(func() {
			defer wg.Done()
			// the slot is freed when op returns, not when its caller gives up,
			// so abandoned calls still count against width
			v, err := callWithBudget(runCtx, e, site, perCallBudget, func(ctx context.Context) (T, error) {
				defer sem.Release(1)
				return op(ctx, i)
			})
			if err != nil {
				failed.Store(true)
				cancel(err)
				return
			}
			results[i] = v
		})
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-runCtx.Done():
	}

	// the batch timer may fire just as the last call returns
	if ctx.Err() == nil && batchSucceeded(done, admitted == iterations, failed.Load()) {
		return results, nil
	}

	if ctx.Err() != nil {
		return nil, &InterruptedError{Op: site, Cause: context.Cause(ctx)}
	}

	err := context.Cause(runCtx)
	var ht *HardTimeoutError
	if errors.As(err, &ht) && ht.CorrelationID == batchID {
		e.logger.Warn("parallel batch timed out, calls left running in background",
			"op", site,
			"batch_id", batchID,
			"total", total.String(),
		)
	}
	return nil, err
}

// batchSucceeded reports whether every call of a batch was admitted and
// returned without error. A batch timer that fired afterwards does not count.
func batchSucceeded(done <-chan struct{}, allAdmitted, failed bool) bool {
	select {
	case <-done:
		return allAdmitted && !failed
	default:
		return false
	}
}
