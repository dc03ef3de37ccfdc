// Package internal holds helpers private to branchauth: identifier and
// refresh-token generation plus the sub-packages below.
//
// # Sub-packages
//
//   - audit — async security event dispatch (Dispatcher + Sink implementations)
//   - flows — pure-function orchestrators for login and logout
//   - ids — ULID identifiers for persisted audit rows
//   - limiters — failed-login lockout policy
//   - pgerr — classification of PostgreSQL errors
//
// Nothing here is part of the public API.
package internal
