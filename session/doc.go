// Package session provides Redis-backed persistence for refresh-token
// records and session blacklist entries.
//
// # Layout
//
// Each refresh token is one Redis hash keyed by the SHA-256 of its value. Two
// index sets group token hashes by session id and by user id. Blacklist
// entries are hashes keyed by session id and carry a Redis TTL matching their
// expiry. Refresh records never expire from Redis; they are retained for
// reuse detection.
//
// # Atomicity
//
// [RedisStore.MarkUsed] is a Lua compare-and-swap: of any number of
// concurrent callers for one record, exactly one succeeds and the rest get
// [ErrTokenStateConflict]. The used and revoked flags only ever move from 0
// to 1.
//
// # What this package must NOT do
//
//   - Import branchauth, jwt, or refresh (no upward imports).
//   - Store plaintext refresh token values.
//   - Make authentication decisions.
package session
