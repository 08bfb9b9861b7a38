// Package progress turns synchronous unit-of-work callbacks from the task
// execution engine into throttled notifications to the client.
//
// A Factory hands out one Monitor per task. The structured Reporter performs an
// asynchronous window/workDoneProgress/create handshake and then sends
// $/progress begin/report/end notifications, rate-limited except for the final
// end. The StatusReporter keeps the older language/progressReport and
// language/status channels alive for clients that predate structured progress,
// and Multicast fans one task out to both during initialization.
//
// Every outbound notification is also published as an Event to an Emitter; the
// Hub batches those events on a background goroutine for pluggable sinks such as
// structured logs or Prometheus metrics.
package progress
