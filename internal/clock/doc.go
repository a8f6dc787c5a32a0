// Package clock provides the time sources used by planbuilder.
//
//   - Clock / Timer: wall-clock timers behind an interface so the
//     reconciliation quiet period can be driven by a manual clock in tests
//   - Seq: monotonic logical sequence for stamping notifications and traces
//   - TokenGenerator: saga run tokens (UUIDv7 in production, fixed in tests)
package clock
