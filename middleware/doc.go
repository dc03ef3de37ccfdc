// Package middleware exposes the SessionGuard HTTP middleware built on
// branchauth.Engine.Authenticate.
//
// # Guards
//
//   - [SessionGuard]: bearer token validation plus the per-request
//     blacklist check; attaches a [branchauth.CurrentUser] to the context.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement authentication logic itself; every decision is delegated to
// the Authenticator.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly.
//   - Access Redis.
//   - Evaluate role claims; they are carried, not enforced.
package middleware
