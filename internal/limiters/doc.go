// Package limiters holds the failed-login lockout policy.
//
// [LockoutLimiter] counts consecutive failed logins per account through an
// atomic store increment and locks the account when the threshold (5 by
// default) is reached. Counts never expire on a timer.
//
// # What this package must NOT do
//
//   - Import branchauth or verify passwords.
//   - Decide what error the caller sees; flow functions do that.
package limiters
