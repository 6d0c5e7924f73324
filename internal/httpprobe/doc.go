// Package httpprobe turns HTTP endpoints into eventually probes.
//
// It is used by the eventually CLI to wait until services come up, and can
// be used directly by tests that need to wait for an endpoint.
//
// The main components are:
//
//   - [Client]: HTTP client wrapper with per-request timeouts and size limits
//   - [Extractor]: maps a response to a [Status]
//   - [Client.Probe]: adapts a request and an extractor into an
//     eventually.Probe
//
// Transport failures (connection refused, timeouts) fail the attempt, so a
// polling loop retries them; any response, even a 5xx, yields a status.
package httpprobe
