package branchauth

import (
	"errors"

	"github.com/MrEthical07/branchauth/refresh"
)

var (
	// ErrUnauthorized is the single category every authentication failure
	// collapses to at the transport boundary.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidCredentials is returned for an unknown username or a wrong
	// password. The two cases are indistinguishable to the caller.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountInactive is returned when the account is disabled.
	ErrAccountInactive = refresh.ErrAccountInactive
	// ErrAccountLocked is returned when the account is locked after repeated
	// failed logins.
	ErrAccountLocked = refresh.ErrAccountLocked
	// ErrInvalidToken is returned for a malformed or badly signed access token.
	ErrInvalidToken = refresh.ErrInvalidToken
	// ErrInvalidRefreshToken is returned when a refresh token does not match,
	// is paired with another access token, or was already used.
	ErrInvalidRefreshToken = refresh.ErrInvalidRefreshToken
	// ErrRefreshTokenReuse is returned when a used or revoked refresh token
	// is presented again. It wraps ErrInvalidRefreshToken.
	ErrRefreshTokenReuse = refresh.ErrRefreshTokenReuse
	// ErrRefreshTokenExpired is returned for a refresh token past its expiry.
	ErrRefreshTokenExpired = refresh.ErrRefreshTokenExpired
	// ErrSessionNotFound marks an unknown session id. Engine logout and
	// revocation treat it as a no-op.
	ErrSessionNotFound = refresh.ErrSessionNotFound
	// ErrSessionRevoked is returned by Authenticate for a blacklisted session.
	ErrSessionRevoked = errors.New("session revoked")
	// ErrEngineNotReady is returned by a zero or partially built Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// IsUnauthorized reports whether err belongs to the externally visible
// "unauthorized" category. Store and configuration failures do not.
func IsUnauthorized(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrAccountInactive),
		errors.Is(err, ErrAccountLocked),
		errors.Is(err, ErrInvalidToken),
		errors.Is(err, ErrInvalidRefreshToken),
		errors.Is(err, ErrRefreshTokenExpired),
		errors.Is(err, ErrSessionRevoked):
		return true
	}
	return false
}
