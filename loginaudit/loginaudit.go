// Package loginaudit records one row per login attempt. Rows are only ever
// appended; the single later write is stamping the logout time on a
// successful attempt's row when its session ends.
package loginaudit

import (
	"context"
	"time"
)

// Outcome reasons recorded on failed attempts.
const (
	ReasonUserNotFound     = "user_not_found"
	ReasonPasswordMismatch = "password_mismatch"
	ReasonAccountInactive  = "account_inactive"
	ReasonAccountLocked    = "account_locked"
	ReasonLockedNow        = "locked_threshold_reached"
	ReasonInternalError    = "internal_error"
)

// Record is one login attempt.
type Record struct {
	ID          string
	UserID      string
	Username    string
	IP          string
	UserAgent   string
	Success     bool
	Reason      string
	SessionID   string
	AttemptedAt time.Time
	LogoutAt    *time.Time
}

// Store persists login attempts.
type Store interface {
	// Append writes r. An empty r.ID is filled in.
	Append(ctx context.Context, r *Record) error
	// CloseSession stamps at as the logout time on the open record for
	// sessionID. It reports whether a record was closed.
	CloseSession(ctx context.Context, sessionID string, at time.Time) (bool, error)
}
