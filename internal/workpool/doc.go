// Package workpool provides the background worker pool used by eventually.
//
// This package is internal to eventually and runs operations whose caller
// may stop waiting before they finish. Work is never cancelled by the pool:
// once submitted, a task runs to completion even if nobody reads its result.
//
// The main components are:
//
//   - [Pool]: Runs tasks on background goroutines with panic recovery
//   - [Submit]: Runs a value-returning function and delivers a [Result]
//   - [Shared]: The lazily created process-wide pool
//   - [PanicError]: A recovered panic, tagged with a correlation ID
//
// Idle workers hold no resources, so the pool never blocks process exit and
// needs no shutdown.
package workpool
