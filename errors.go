package eventually

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// ErrDeadlineExceeded is the root of every timeout failure that has no
// other cause. Test it with errors.Is.
var ErrDeadlineExceeded = errors.New("deadline exceeded")

// ErrStale marks the transient failure retried by [RetryOnStale]: a reference
// to observed state is no longer valid because the state was replaced while
// it was being read. Return it, or an error wrapping it, from an operation.
var ErrStale = errors.New("stale reference")

// Stale wraps err so that errors.Is(result, ErrStale) holds. A nil err
// yields ErrStale itself.
func Stale(err error) error {
	if err == nil {
		return ErrStale
	}
	return &staleError{err: err}
}

type staleError struct {
	err error
}

func (e *staleError) Error() string {
	return "stale reference: " + e.err.Error()
}

func (e *staleError) Unwrap() []error {
	return []error{ErrStale, e.err}
}

// Permanent marks a probe failure as not worth retrying. A polling loop that
// sees it stops at once, even in debug mode.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string {
	return e.err.Error()
}

func (e *permanentError) Unwrap() error {
	return e.err
}

func isPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// PollTimeoutError reports that a poll ended without a present value.
//
// Cause holds the failure of the final attempt, if it failed. Without a
// cause the error unwraps to [ErrDeadlineExceeded].
type PollTimeoutError struct {
	// Op describes the call site of the poll.
	Op string

	// Timeout is the effective budget the poll ran under.
	Timeout Budget

	// Attempts is the number of times the probe was invoked.
	Attempts int

	// Elapsed is the wall-clock time spent polling.
	Elapsed time.Duration

	// Cause is the last attempt's failure, if any.
	Cause error
}

func (e *PollTimeoutError) Error() string {
	var b strings.Builder
	switch {
	case e.Cause != nil && isPermanent(e.Cause):
		fmt.Fprintf(&b, "%s: gave up after %d attempt(s): non-retryable failure", e.Op, e.Attempts)
	case e.Attempts <= 1 && e.Timeout.Immediate():
		fmt.Fprintf(&b, "%s: not present on the only attempt", e.Op)
	default:
		fmt.Fprintf(&b, "%s: timed out after %s (%d attempt(s), budget %s)",
			e.Op, e.Elapsed.Round(time.Millisecond), e.Attempts, e.Timeout)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *PollTimeoutError) Unwrap() error {
	if e.Cause != nil {
		return e.Cause
	}
	return ErrDeadlineExceeded
}

// HardTimeoutError reports that a single operation outlived its budget.
//
// The operation is not stopped: it keeps running in the background and its
// side effects may still happen after this error is returned.
type HardTimeoutError struct {
	// Op describes the call site of the operation.
	Op string

	// Timeout is the effective budget the caller waited for.
	Timeout Budget

	// CorrelationID identifies the log record written when the caller gave up.
	CorrelationID string
}

func (e *HardTimeoutError) Error() string {
	return fmt.Sprintf("%s: no result within %s, operation left running (correlation_id: %s)",
		e.Op, e.Timeout, e.CorrelationID)
}

func (e *HardTimeoutError) Unwrap() error {
	return ErrDeadlineExceeded
}

// InterruptedError reports that the caller's context ended while it was
// waiting. It is never retried.
type InterruptedError struct {
	// Op describes the call site that was interrupted.
	Op string

	// Cause is the context's cause, usually context.Canceled.
	Cause error
}

func (e *InterruptedError) Error() string {
	return fmt.Sprintf("%s: interrupted: %v", e.Op, e.Cause)
}

func (e *InterruptedError) Unwrap() error {
	return e.Cause
}

// UnexpectedError wraps a failure that fits no other category, adding the
// call site that observed it.
type UnexpectedError struct {
	// Op describes the call site.
	Op string

	// Err is the original failure.
	Err error
}

func (e *UnexpectedError) Error() string {
	return fmt.Sprintf("%s: unexpected failure: %v", e.Op, e.Err)
}

func (e *UnexpectedError) Unwrap() error {
	return e.Err
}

// classified reports whether err already belongs to this package's error
// taxonomy and must be passed on unchanged.
func classified(err error) bool {
	return errors.Is(err, ErrStale) || ownError(err)
}

// ownError reports whether err is one of this package's error types. A stale
// failure chained under one of them belongs to that error, not to the caller.
func ownError(err error) bool {
	var (
		pt *PollTimeoutError
		ht *HardTimeoutError
		ie *InterruptedError
		ue *UnexpectedError
		ae *AssertionError
	)
	switch {
	case errors.As(err, &pt),
		errors.As(err, &ht),
		errors.As(err, &ie),
		errors.As(err, &ue),
		errors.As(err, &ae):
		return true
	}
	return false
}

// classify passes classified errors through and wraps everything else.
func classify(op string, err error) error {
	if err == nil || classified(err) {
		return err
	}
	return &UnexpectedError{Op: op, Err: err}
}

func interrupted(err error) bool {
	var ie *InterruptedError
	return errors.As(err, &ie)
}

// callSite describes the caller skip frames above its own caller, as
// "file.go:12 (pkg.Func)".
func callSite(skip int) string {
	pc, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return "unknown call site"
	}
	site := fmt.Sprintf("%s:%d", filepath.Base(file), line)
	if fn := runtime.FuncForPC(pc); fn != nil {
		name := fn.Name()
		if i := strings.LastIndex(name, "/"); i >= 0 {
			name = name[i+1:]
		}
		site += " (" + name + ")"
	}
	return site
}
