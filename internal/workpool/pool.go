package workpool

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Result holds the outcome of a function run by [Submit].
type Result[T any] struct {
	// Value is the function's return value. Zero if Err is set.
	Value T

	// Err is the function's error, or a [*PanicError] if it panicked.
	Err error
}

// PanicError reports a panic recovered on a pool worker.
//
// The full stack trace is logged with the correlation ID; the error message
// carries only the ID so it can be matched against the log.
type PanicError struct {
	// CorrelationID identifies the log record holding the stack trace.
	CorrelationID string

	// Value is the value passed to panic.
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v (correlation_id: %s)", e.Value, e.CorrelationID)
}

// Pool runs tasks on background goroutines.
//
// Pool is unbounded: every submission gets its own goroutine immediately, so
// a slow task never delays another. Admission control, where needed, is the
// caller's job. Pool is safe for concurrent use.
type Pool struct {
	logger *slog.Logger
	stats  *stats
}

type stats struct {
	active    atomic.Int64
	submitted atomic.Uint64
}

// New creates a [Pool] that logs recovered panics to logger.
// If logger is nil, [slog.Default] is used.
func New(logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{logger: logger, stats: &stats{}}
}

// WithLogger returns a view of p that logs recovered panics to logger. The
// view shares p's counters. A nil logger returns p itself.
func (p *Pool) WithLogger(logger *slog.Logger) *Pool {
	if logger == nil {
		return p
	}
	return &Pool{logger: logger, stats: p.stats}
}

var shared = sync.OnceValue(func() *Pool {
	return New(nil)
})

// Shared returns the process-wide pool, creating it on first use.
func Shared() *Pool {
	return shared()
}

// Go runs task on a pool worker.
//
// A panic inside task is recovered and logged; it never crashes the process.
// Use [Submit] when the caller needs to observe the panic.
func (p *Pool) Go(task func()) {
	p.stats.submitted.Add(1)
	p.stats.active.Add(1)
	go func() {
		defer p.stats.active.Add(-1)
		defer func() {
			if r := recover(); r != nil {
				p.logPanic(r)
			}
		}()
		task()
	}()
}

// Active returns the number of tasks currently running.
func (p *Pool) Active() int {
	return int(p.stats.active.Load())
}

// Submitted returns the number of tasks ever submitted.
func (p *Pool) Submitted() uint64 {
	return p.stats.submitted.Load()
}

// Submit runs fn on a worker of p and delivers its outcome on the returned
// channel.
//
// The channel is buffered, so a caller that stops waiting never blocks the
// worker; the value is simply dropped once fn finishes. A panic in fn is
// delivered as a [*PanicError].
func Submit[T any](p *Pool, fn func() (T, error)) <-chan Result[T] {
	ch := make(chan Result[T], 1)
	p.Go(func() {
		var res Result[T]
		defer func() { ch <- res }()
		res = Call(p, fn)
	})
	return ch
}

// Call runs fn on the calling goroutine with the same panic recovery and
// logging as [Submit].
func Call[T any](p *Pool, fn func() (T, error)) (res Result[T]) {
	defer func() {
		if r := recover(); r != nil {
			res = Result[T]{Err: p.logPanic(r)}
		}
	}()
	v, err := fn()
	return Result[T]{Value: v, Err: err}
}

// logPanic records a recovered panic and returns it as an error.
func (p *Pool) logPanic(r any) *PanicError {
	correlationID := uuid.NewString()
	stack := debug.Stack()

	p.logger.Error("worker panic",
		"correlation_id", correlationID,
		"panic", fmt.Sprintf("%v", r),
		"stack", string(stack),
	)

	return &PanicError{CorrelationID: correlationID, Value: r}
}
