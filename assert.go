package eventually

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jpalmerr/eventually/internal/workpool"
)

const recentObservations = 3

// AssertionError reports that a polled value never satisfied its matcher.
//
// It unwraps to the last error the probe produced, or, if the probe never
// failed, to the poll's [*PollTimeoutError] and from there to
// [ErrDeadlineExceeded].
type AssertionError struct {
	// Reason is the caller's explanation of what was being checked.
	Reason string

	// Expected describes the matcher's condition.
	Expected string

	// Mismatch describes the last observed value against the matcher, or
	// the last failure if no value was ever observed.
	Mismatch string

	// Attempts is the number of probe invocations.
	Attempts int

	// Elapsed is the time spent polling.
	Elapsed time.Duration

	// Recent lists the last distinct observations, oldest first.
	Recent []string

	// Err is the chained cause.
	Err error
}

func (e *AssertionError) Error() string {
	var b strings.Builder
	if e.Reason != "" {
		b.WriteString(e.Reason)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Expected: %s\n     but: %s", e.Expected, e.Mismatch)
	if e.Attempts > 0 {
		fmt.Fprintf(&b, "\nafter %d attempt(s) in %s", e.Attempts, e.Elapsed.Round(time.Millisecond))
	}
	if len(e.Recent) > 1 {
		b.WriteString("\nrecent observations (oldest to newest):")
		for _, r := range e.Recent {
			b.WriteString("\n    ")
			b.WriteString(r)
		}
	}
	return b.String()
}

func (e *AssertionError) Unwrap() error {
	return e.Err
}

// assertionRecord accumulates what the probe produced during one assertion.
// The poll may outlive the caller after a hard timeout, hence the lock.
type assertionRecord[T any] struct {
	mu       sync.Mutex
	value    T
	hasValue bool
	err      error
	recent   []string
}

func (r *assertionRecord[T]) observeValue(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.value, r.hasValue = v, true
	r.remember(formatValue(v))
}

func (r *assertionRecord[T]) observeErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
	r.remember("error: " + err.Error())
}

// remember keeps the last few distinct observations, like a short history
// of screen captures.
func (r *assertionRecord[T]) remember(s string) {
	if n := len(r.recent); n > 0 && r.recent[n-1] == s {
		return
	}
	r.recent = append(r.recent, s)
	if len(r.recent) > recentObservations {
		r.recent = r.recent[len(r.recent)-recentObservations:]
	}
}

func (r *assertionRecord[T]) failure(reason string, m Matcher[T], pollErr *PollTimeoutError) *AssertionError {
	r.mu.Lock()
	defer r.mu.Unlock()

	ae := &AssertionError{
		Reason:   reason,
		Expected: m.String(),
		Attempts: pollErr.Attempts,
		Elapsed:  pollErr.Elapsed,
		Recent:   append([]string(nil), r.recent...),
		Err:      pollErr,
	}
	switch {
	case r.hasValue:
		ae.Mismatch = m.DescribeMismatch(r.value)
	case r.err != nil:
		ae.Mismatch = "probe failed: " + r.err.Error()
	default:
		ae.Mismatch = "no value was produced"
	}
	if r.err != nil {
		ae.Err = r.err
	}
	return ae
}

// AssertThat polls probe until its value satisfies m, with the same rules
// as [KeepTrying], and returns the matching value.
//
// If the timeout passes first, AssertThat returns an [*AssertionError]
// combining reason, the matcher's description, and the mismatch of the last
// value seen (or the last failure, if the probe never produced a value). An
// [*InterruptedError] is returned as is.
//
// Example:
//
//	count, err := eventually.AssertThat(ctx, e, 10*time.Second,
//	    "cart shows the added item", cartCount, eventually.EqualTo(1))
func AssertThat[T any](ctx context.Context, e *Engine, timeout time.Duration, reason string, probe Probe[T], m Matcher[T], opts ...PollOption) (T, error) {
	e = orDefault(e)
	return assertThat(ctx, e, e.pollOptions(callSite(1), opts), timeout, reason, probe, m)
}

// AssertThatSoon is [AssertThat] with the settings' short timeout plus one
// second.
func AssertThatSoon[T any](ctx context.Context, e *Engine, reason string, probe Probe[T], m Matcher[T], opts ...PollOption) (T, error) {
	e = orDefault(e)
	timeout := e.settings.ShortTimeout() + soonMargin
	return assertThat(ctx, e, e.pollOptions(callSite(1), opts), timeout, reason, probe, m)
}

// AssertThatLater is [AssertThat] with the settings' long timeout.
func AssertThatLater[T any](ctx context.Context, e *Engine, reason string, probe Probe[T], m Matcher[T], opts ...PollOption) (T, error) {
	e = orDefault(e)
	return assertThat(ctx, e, e.pollOptions(callSite(1), opts), e.settings.LongTimeout(), reason, probe, m)
}

func assertThat[T any](ctx context.Context, e *Engine, po pollOptions, timeout time.Duration, reason string, probe Probe[T], m Matcher[T]) (T, error) {
	rec := &assertionRecord[T]{}

	matching := func(ctx context.Context) Outcome[T] {
		res := workpool.Call(e.pool, func() (Outcome[T], error) {
			out := probe(ctx)
			v, ok := out.Get()
			if !ok {
				if err := out.Err(); err != nil {
					rec.observeErr(err)
				}
				return out, nil
			}
			if m.Matches(v) {
				return out, nil
			}
			rec.observeValue(v)
			return Pending[T](), nil
		})
		if res.Err != nil {
			rec.observeErr(res.Err)
			return Failed[T](res.Err)
		}
		return res.Value
	}

	v, err := keepTrying(ctx, e, po, timeout, matching)
	if err == nil {
		return v, nil
	}

	var pollErr *PollTimeoutError
	if !errors.As(err, &pollErr) {
		return v, err
	}
	return v, rec.failure(reason, m, pollErr)
}

// Must fails the test immediately if err is non-nil and otherwise returns v.
//
//	title := eventually.Must(t, eventually.AssertThatSoon(ctx, nil,
//	    "page title", readTitle, eventually.ContainsString("Welcome")))
func Must[T any](t testing.TB, v T, err error) T {
	t.Helper()
	if err != nil {
		t.Fatalf("%v", err)
	}
	return v
}
