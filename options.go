package eventually

import (
	"errors"
	"log/slog"
	"time"

	"github.com/jpalmerr/eventually/internal/workpool"
)

// engineConfig holds mutable state during Engine construction.
type engineConfig struct {
	settings      *Settings
	logger        *slog.Logger
	pool          *workpool.Pool
	pollDelay     time.Duration
	staleAttempts int
	staleDelay    time.Duration
	hardGrace     time.Duration
}

// Option is a function that configures an [Engine] during construction.
//
// Option implements the functional options pattern, allowing optional
// configuration to be passed to [New] in a type-safe, extensible way.
// Options return an error if validation fails.
//
// Built-in options: [WithSettings], [WithLogger], [WithPollDelay],
// [WithStaleRetry], [WithHardTimeoutGrace].
type Option func(*engineConfig) error

// WithSettings makes the engine read its timeouts and debug flag from s.
//
// Defaults to [DefaultSettings]. Use a private Settings to isolate tests that
// change the time scale or debug mode.
//
// Example:
//
//	s := eventually.NewSettings()
//	s.SetTimeScale(3)
//	e, err := eventually.New(eventually.WithSettings(s))
//
// Returns an error if s is nil.
func WithSettings(s *Settings) Option {
	return func(cfg *engineConfig) error {
		if s == nil {
			return errors.New("settings cannot be nil")
		}
		cfg.settings = s
		return nil
	}
}

// WithLogger sets a custom [slog.Logger] for the engine.
//
// If not specified, [slog.Default] is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *engineConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithPollDelay sets the pause between probe attempts used when a call does
// not pass [WithDelay]. The delay is multiplied by the time scale.
// Defaults to 250ms.
//
// Returns an error if the duration is negative.
func WithPollDelay(d time.Duration) Option {
	return func(cfg *engineConfig) error {
		if d < 0 {
			return errors.New("poll delay cannot be negative")
		}
		cfg.pollDelay = d
		return nil
	}
}

// WithStaleRetry sets how often [RetryOnStale] tries an operation and how
// long it pauses between tries, unless a call overrides them.
// Defaults to 3 attempts and 100ms.
//
// Returns an error if attempts is not positive or delay is negative.
func WithStaleRetry(attempts int, delay time.Duration) Option {
	return func(cfg *engineConfig) error {
		if attempts <= 0 {
			return errors.New("stale retry attempts must be positive")
		}
		if delay < 0 {
			return errors.New("stale retry delay cannot be negative")
		}
		cfg.staleAttempts = attempts
		cfg.staleDelay = delay
		return nil
	}
}

// WithHardTimeoutGrace sets the slack added on top of a poll's own budget
// before the worker running it is abandoned. Defaults to 1s.
//
// Returns an error if the duration is negative.
func WithHardTimeoutGrace(d time.Duration) Option {
	return func(cfg *engineConfig) error {
		if d < 0 {
			return errors.New("hard timeout grace cannot be negative")
		}
		cfg.hardGrace = d
		return nil
	}
}

// withPool runs the engine's background work on p.
func withPool(p *workpool.Pool) Option {
	return func(cfg *engineConfig) error {
		if p == nil {
			return errors.New("pool cannot be nil")
		}
		cfg.pool = p
		return nil
	}
}

// PollOption configures a single [KeepTrying], [WaitUntil] or [AssertThat]
// call.
type PollOption func(*pollOptions)

type pollOptions struct {
	delay time.Duration
	op    string
}

// WithDelay overrides the pause between attempts for a single call.
// Negative values are treated as zero.
func WithDelay(d time.Duration) PollOption {
	return func(o *pollOptions) {
		if d < 0 {
			d = 0
		}
		o.delay = d
	}
}

// Describe names the call in error messages instead of its call site.
func Describe(op string) PollOption {
	return func(o *pollOptions) {
		o.op = op
	}
}

// RetryOption configures a single [RetryOnStale] call.
type RetryOption func(*retryOptions)

type retryOptions struct {
	attempts int
	delay    time.Duration
	op       string
}

// WithAttempts overrides the maximum number of attempts for a single call.
// Values below 1 mean a single attempt.
func WithAttempts(n int) RetryOption {
	return func(o *retryOptions) {
		o.attempts = n
	}
}

// WithRetryDelay overrides the pause between attempts for a single call.
func WithRetryDelay(d time.Duration) RetryOption {
	return func(o *retryOptions) {
		if d < 0 {
			d = 0
		}
		o.delay = d
	}
}
