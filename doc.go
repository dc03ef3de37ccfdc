// Package branchauth is the credential and session authority for a
// multi-branch application: it verifies passwords, issues JWT access tokens
// paired with opaque single-use refresh tokens, rotates them with reuse
// detection, blacklists revoked sessions, and locks accounts after repeated
// failed logins.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// branchauth is the public surface. It exposes [Engine], [Builder], [Config],
// the error taxonomy and value types ([LoginResult], [CurrentUser],
// [SessionInfo]). Token state lives in the session and refresh packages;
// credentials and login audit rows live behind the credential and loginaudit
// store contracts.
//
// # What this package must NOT do
//
//   - Expose Redis clients, refresh token hashes or store internals in its
//     public API.
//   - Return internal failure reasons to callers; they are logged and audited.
//   - Import any sub-package that re-imports branchauth (no import cycles).
package branchauth
