package eventually

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jpalmerr/eventually/internal/workpool"
)

const (
	defaultPollDelay     = 250 * time.Millisecond
	defaultStaleAttempts = 3
	defaultStaleDelay    = 100 * time.Millisecond
	defaultHardGrace     = time.Second
)

// Engine executes polls, bounded calls and retries.
//
// An Engine binds the [Settings] it reads on every call, the worker pool its
// background work runs on, and its logger. It holds no per-call state and is
// safe for concurrent use. Every entry point accepts a nil *Engine, which
// selects [Default].
//
// Example:
//
//	e, err := eventually.New(
//	    eventually.WithLogger(logger),
//	    eventually.WithPollDelay(100 * time.Millisecond),
//	)
//	if err != nil {
//	    return err
//	}
//	title, err := eventually.KeepTrying(ctx, e, 5*time.Second, readTitle)
type Engine struct {
	settings      *Settings
	logger        *slog.Logger
	pool          *workpool.Pool
	pollDelay     time.Duration
	staleAttempts int
	staleDelay    time.Duration
	hardGrace     time.Duration
}

// New creates an [Engine] with the given options.
//
// Defaults:
//   - Settings: [DefaultSettings]
//   - Logger: [slog.Default]
//   - Poll delay: 250ms
//   - Stale retry: 3 attempts, 100ms apart
//   - Hard timeout grace: 1s
//
// Returns an error if any option is invalid.
func New(opts ...Option) (*Engine, error) {
	cfg := &engineConfig{
		pollDelay:     defaultPollDelay,
		staleAttempts: defaultStaleAttempts,
		staleDelay:    defaultStaleDelay,
		hardGrace:     defaultHardGrace,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	settings := cfg.settings
	if settings == nil {
		settings = DefaultSettings()
	}

	// default to slog.Default() if no logger provided
	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	// panics on the shared pool are logged to this engine's logger
	pool := cfg.pool
	if pool == nil {
		pool = workpool.Shared().WithLogger(logger)
	}

	return &Engine{
		settings:      settings,
		logger:        logger,
		pool:          pool,
		pollDelay:     cfg.pollDelay,
		staleAttempts: cfg.staleAttempts,
		staleDelay:    cfg.staleDelay,
		hardGrace:     cfg.hardGrace,
	}, nil
}

var defaultEngine = sync.OnceValue(func() *Engine {
	e, err := New()
	if err != nil {
		panic("eventually: default engine: " + err.Error())
	}
	return e
})

// Default returns the process-wide engine, built on first use from
// [DefaultSettings], [slog.Default] and the shared worker pool.
func Default() *Engine {
	return defaultEngine()
}

// Settings returns the settings the engine reads on every call.
func (e *Engine) Settings() *Settings {
	return e.settings
}

func orDefault(e *Engine) *Engine {
	if e == nil {
		return Default()
	}
	return e
}

type depthKey struct{}

// pollDepth returns how many polls enclose ctx.
func pollDepth(ctx context.Context) int {
	n, _ := ctx.Value(depthKey{}).(int)
	return n
}

// enterPoll returns a context one poll deeper than ctx. The caller's own
// context is untouched, so leaving the poll restores the depth on every path.
func enterPoll(ctx context.Context) context.Context {
	return context.WithValue(ctx, depthKey{}, pollDepth(ctx)+1)
}

// Nested reports whether ctx belongs to a probe of a running poll, in which
// case any poll started with it runs as a single attempt.
func Nested(ctx context.Context) bool {
	return pollDepth(ctx) > 0
}

// sleep pauses for d or until ctx ends, returning an InterruptedError in the
// latter case.
func sleep(ctx context.Context, op string, d time.Duration) error {
	if d <= 0 {
		return interruptedBy(ctx, op)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return &InterruptedError{Op: op, Cause: context.Cause(ctx)}
	}
}

func interruptedBy(ctx context.Context, op string) error {
	if ctx.Err() != nil {
		return &InterruptedError{Op: op, Cause: context.Cause(ctx)}
	}
	return nil
}
