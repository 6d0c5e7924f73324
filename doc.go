// Package eventually lets test code wait for an eventually-consistent,
// flaky target, such as a live browser page, without sleeping blindly and
// without flaking on transient inconsistency.
//
// The target is observed only through probes: functions that may fail
// transiently, report "not yet", or block. eventually runs them under time
// budgets and turns the outcome into a single, well-classified error.
//
// # Quick Start
//
//	e, _ := eventually.New(eventually.WithLogger(logger))
//
//	// Wait until the banner appears.
//	banner, err := eventually.KeepTrying(ctx, e, 5*time.Second,
//	    eventually.Try(func(ctx context.Context) (*Element, error) {
//	        return page.Find(ctx, ".banner")
//	    }))
//
//	// Assert with a diagnostic failure.
//	_, err = eventually.AssertThatSoon(ctx, e, "cart badge after adding an item",
//	    eventually.Try(cart.Count), eventually.EqualTo(1))
//
// # Probes and Outcomes
//
// A [Probe] returns an [Outcome]: [Ready] with a value, [Pending] when
// nothing is available yet, or [Failed] with an error. [Try] and [Check]
// adapt ordinary functions. Failures are retried until the budget runs out;
// wrap an error with [Permanent] to stop at once.
//
// # Time Budgets
//
// Every timeout passes through [Settings.Scale]:
//
//   - the time scale multiplies it (useful on slow CI machines)
//   - debug mode makes it unbounded, so a paused debugger never fails a test
//   - a budget under one millisecond (including a scale of 0 or NaN) means
//     "try exactly once"
//
// Settings are read on every call, so changes take effect immediately.
//
// # Nested Polls
//
// Probes are often composed: "wait until clickable" may itself wait until
// visible. A poll started with the context handed to a probe runs as a single
// attempt and ignores its own timeout, so nested waits never multiply.
//
// # Hard Timeouts
//
// [CallWithTimeout] bounds how long the caller waits, not how long the work
// runs. An operation that times out keeps running on the worker pool and
// may still complete its side effects later.
//
// # Errors
//
//   - [*PollTimeoutError]: a poll ended without a present value
//   - [*HardTimeoutError]: a bounded operation exceeded its budget
//   - [*InterruptedError]: the caller's context ended; never retried
//   - [ErrStale]: a structural race, retried by [RetryOnStale]
//   - [*UnexpectedError]: anything else, with the call site attached
//   - [*AssertionError]: a matcher never matched; carries the reason, the
//     expected condition and the last observed value or failure
//
// # Batches and Background Work
//
// [Parallel] runs many calls with an admission limit; [Meanwhile] starts
// work in the background and returns a [Handle] to collect it later.
package eventually
