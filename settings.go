package eventually

import (
	"math"
	"sync/atomic"
	"time"
)

const (
	defaultTimeScale    = 1.0
	defaultShortTimeout = 5 * time.Second
	defaultLongTimeout  = 30 * time.Second

	// soonMargin is added to the short timeout by [AssertThatSoon].
	soonMargin = time.Second
)

// Settings holds the process-wide knobs that every timed call consults.
//
// All fields may be changed at any time from any goroutine. Nothing caches
// them: each call to [KeepTrying], [CallWithTimeout] and friends reads the
// current values, so a change takes effect on the next call.
//
// The zero value is not ready for use; create one with [NewSettings] or use
// [DefaultSettings].
type Settings struct {
	debug        atomic.Bool
	timeScale    atomic.Uint64 // math.Float64bits
	shortTimeout atomic.Int64
	longTimeout  atomic.Int64
}

// NewSettings returns Settings with debug off, a time scale of 1, a 5s short
// timeout and a 30s long timeout.
func NewSettings() *Settings {
	s := &Settings{}
	s.SetTimeScale(defaultTimeScale)
	s.SetShortTimeout(defaultShortTimeout)
	s.SetLongTimeout(defaultLongTimeout)
	return s
}

var defaultSettings = NewSettings()

// DefaultSettings returns the process-wide Settings used by [Default].
func DefaultSettings() *Settings {
	return defaultSettings
}

// Debug reports whether timeouts are disabled for interactive debugging.
func (s *Settings) Debug() bool {
	return s.debug.Load()
}

// SetDebug turns debug mode on or off.
//
// While debug mode is on every budget is unbounded and stale retries are not
// counted, so a paused debugger never turns into a test failure.
func (s *Settings) SetDebug(on bool) {
	s.debug.Store(on)
}

// TimeScale returns the factor applied to every timeout and delay.
func (s *Settings) TimeScale() float64 {
	return math.Float64frombits(s.timeScale.Load())
}

// SetTimeScale sets the factor applied to every timeout and delay.
//
// A factor of 2 doubles all waits, which helps on slow CI machines. A factor
// of 0 (or NaN) collapses every poll into a single attempt.
func (s *Settings) SetTimeScale(f float64) {
	s.timeScale.Store(math.Float64bits(f))
}

// ShortTimeout returns the base timeout used by [AssertThatSoon].
func (s *Settings) ShortTimeout() time.Duration {
	return time.Duration(s.shortTimeout.Load())
}

// SetShortTimeout sets the base timeout used by [AssertThatSoon].
func (s *Settings) SetShortTimeout(d time.Duration) {
	s.shortTimeout.Store(int64(d))
}

// LongTimeout returns the timeout used by [AssertThatLater].
func (s *Settings) LongTimeout() time.Duration {
	return time.Duration(s.longTimeout.Load())
}

// SetLongTimeout sets the timeout used by [AssertThatLater].
func (s *Settings) SetLongTimeout(d time.Duration) {
	s.longTimeout.Store(int64(d))
}

// Budget is the effective time allowance of one call, derived from a
// requested timeout by [Settings.Scale].
//
// A Budget is either unbounded (it never expires) or a finite, non-negative
// duration.
type Budget struct {
	d         time.Duration
	unbounded bool
}

// Unbounded returns a Budget that never expires.
func Unbounded() Budget {
	return Budget{unbounded: true}
}

// Unbounded reports whether the budget never expires.
func (b Budget) Unbounded() bool {
	return b.unbounded
}

// Duration returns the finite allowance. It is meaningless if the budget is
// unbounded.
func (b Budget) Duration() time.Duration {
	return b.d
}

// Immediate reports whether the budget leaves no room to wait at all: it is
// bounded and shorter than one millisecond. Such calls try exactly once.
func (b Budget) Immediate() bool {
	return !b.unbounded && b.d.Milliseconds() <= 0
}

// Deadline returns the instant the budget expires when started at now.
// ok is false for an unbounded budget.
func (b Budget) Deadline(now time.Time) (deadline time.Time, ok bool) {
	if b.unbounded {
		return time.Time{}, false
	}
	return now.Add(b.d), true
}

// Add extends a bounded budget by d. An unbounded budget stays unbounded.
func (b Budget) Add(d time.Duration) Budget {
	if b.unbounded || d <= 0 {
		return b
	}
	if b.d > math.MaxInt64-d {
		return Unbounded()
	}
	return Budget{d: b.d + d}
}

func (b Budget) String() string {
	if b.unbounded {
		return "unbounded"
	}
	return b.d.String()
}

// Scale turns a requested timeout into the effective [Budget]:
//
//   - in debug mode the budget is unbounded, whatever was requested
//   - otherwise it is requested multiplied by the time scale
//   - a NaN or non-positive product yields a zero budget (try once)
//   - a product too large for a time.Duration yields an unbounded budget
func (s *Settings) Scale(requested time.Duration) Budget {
	if s.Debug() {
		return Unbounded()
	}
	return scaleBy(requested, s.TimeScale())
}

// ScaleDelay multiplies a sleep by the time scale. Unlike [Settings.Scale] it
// ignores debug mode: a debugging session slows nothing down on its own.
// NaN and negative results are treated as no delay.
func (s *Settings) ScaleDelay(d time.Duration) time.Duration {
	b := scaleBy(d, s.TimeScale())
	if b.unbounded {
		return time.Duration(math.MaxInt64)
	}
	return b.d
}

func scaleBy(d time.Duration, factor float64) Budget {
	f := float64(d) * factor
	switch {
	case math.IsNaN(f), f <= 0:
		return Budget{}
	case f >= math.MaxInt64:
		return Unbounded()
	}
	return Budget{d: time.Duration(f)}
}
