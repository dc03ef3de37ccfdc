// Package audit implements async dispatch of security events.
//
// # Components
//
//   - [Sink] — event consumer (channel, JSON writer, slog, no-op).
//   - [Dispatcher] — buffered relay with drop-if-full or block-if-full semantics.
//   - [Event] — timestamp, type, user, branch, session, client, outcome, metadata.
//
// # Architecture boundaries
//
// This package owns buffering and sink delivery. It does NOT decide which
// events to emit; the Engine and flow functions do.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import branchauth or any sibling internal package.
//   - Perform network I/O beyond what a caller-supplied Sink does.
package audit
