// Package jwt encodes and validates HMAC-signed access tokens carrying the
// user identity, branch and session id.
package jwt
