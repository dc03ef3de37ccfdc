// Package refresh implements the refresh-token state machine: issuance of
// access/refresh pairs, one-time-use rotation with reuse detection, and
// session revocation with blacklisting.
//
// # Token states
//
// A refresh record is Active until it is rotated away (Used), revoked
// (Revoked), or passes its expiry (Expired, derived from the clock and never
// stored). All three are terminal. Presenting a Used or Revoked token is
// treated as theft of the token family: every active session of the user is
// revoked and the call fails with [ErrRefreshTokenReuse].
//
// # Architecture boundaries
//
// [Issuer] talks to a [Codec] for access tokens and a [Store] for
// persistence. It does not look at passwords or lockout state; account
// status is consulted only through an optional [SubjectResolver].
//
// # What this package must NOT do
//
//   - Import branchauth (no upward imports).
//   - Hold an in-process lock across store calls.
//   - Read the clock more than once per operation.
package refresh
