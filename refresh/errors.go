package refresh

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidToken is returned when the presented access token is malformed,
	// badly signed, or issued for another issuer or audience.
	ErrInvalidToken = errors.New("invalid token")
	// ErrInvalidRefreshToken is returned when no refresh record matches the
	// presented value and jwt id, or the record belongs to another session.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	// ErrRefreshTokenReuse is returned when a used or revoked refresh token is
	// presented again. It wraps ErrInvalidRefreshToken.
	ErrRefreshTokenReuse = fmt.Errorf("%w: reuse detected", ErrInvalidRefreshToken)
	// ErrRefreshTokenExpired is returned when an otherwise valid refresh token
	// is past its expiry.
	ErrRefreshTokenExpired = errors.New("refresh token expired")
	// ErrSessionNotFound is returned by Revoke for an unknown session id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrAccountInactive is returned when the subject's account is disabled.
	ErrAccountInactive = errors.New("account inactive")
	// ErrAccountLocked is returned when the subject's account is locked.
	ErrAccountLocked = errors.New("account locked")
)
