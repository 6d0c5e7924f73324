package eventually

import (
	"context"
	"fmt"

	"github.com/jpalmerr/eventually/internal/workpool"
)

// Handle is the result of a background operation started by [Meanwhile].
type Handle[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Done returns a channel that is closed when the operation has finished and
// its callbacks have run.
func (h *Handle[T]) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the operation finishes and returns its outcome. If ctx
// ends first, Wait returns an [*InterruptedError]; the operation keeps
// running and a later Wait can still collect it.
func (h *Handle[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-h.done:
		return h.value, h.err
	case <-ctx.Done():
		var zero T
		return zero, &InterruptedError{Op: "meanwhile: wait", Cause: context.Cause(ctx)}
	}
}

// Meanwhile starts op on the worker pool and returns at once.
//
// When op finishes, onSuccess or onError is called with its outcome on the
// worker; either may be nil. Callbacks must not block for long. A panic in
// op is reported as an [*UnexpectedError]; a panic in a callback is
// recovered and logged.
//
// Example:
//
//	h := eventually.Meanwhile(ctx, e, downloadReport,
//	    func(r Report) { log.Printf("report ready: %s", r.Name) },
//	    nil,
//	)
//	// ... drive the page ...
//	report, err := h.Wait(ctx)
func Meanwhile[T any](ctx context.Context, e *Engine, op func(ctx context.Context) (T, error), onSuccess func(T), onError func(error)) *Handle[T] {
	e = orDefault(e)
	site := callSite(1)
	h := &Handle[T]{done: make(chan struct{})}

	e.pool.Go(func() {
		defer close(h.done)

		res := workpool.Call(e.pool, func() (T, error) { return op(ctx) })
		h.value, h.err = res.Value, classify(site, res.Err)

		if h.err != nil {
			if onError != nil {
				e.invokeCallbackSafe(site, func() { onError(h.err) })
			}
			return
		}
		if onSuccess != nil {
			e.invokeCallbackSafe(site, func() { onSuccess(h.value) })
		}
	})

	return h
}

// invokeCallbackSafe calls a completion callback with panic recovery.
// Panics are logged but do not propagate.
func (e *Engine) invokeCallbackSafe(op string, cb func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("callback panicked",
				"panic", fmt.Sprintf("%v", r),
				"op", op,
			)
		}
	}()
	cb()
}
