// Package flows contains the bodies of the Engine's login and logout
// operations.
//
// Each flow function (RunLogin, RunLogout) accepts a typed dependency struct
// of function fields and returns a result value. The Engine builds the deps
// from its stores, verifier and issuer and maps the result onto its public
// error taxonomy.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the credential store, password
// verifier, lockout limiter, token issuer, login audit store, audit
// dispatcher and metrics. They do NOT own any of these resources.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import branchauth (to avoid import cycles).
//   - Perform I/O directly; all I/O is mediated through dependency functions.
package flows
