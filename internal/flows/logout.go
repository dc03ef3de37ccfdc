package flows

import (
	"context"
	"errors"
	"time"
)

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	Now        func() time.Time
	Revoke     func(ctx context.Context, sessionID, reason string) (int, error)
	CloseAudit func(ctx context.Context, sessionID string, at time.Time) (bool, error)
	Warn       func(string, ...any)

	// SessionNotFound is the sentinel Revoke returns for an unknown session.
	SessionNotFound error
}

// LogoutResult reports what a logout touched.
type LogoutResult struct {
	Found   bool
	Revoked int
	Err     error
}

// RunLogout closes the session's login audit record and revokes it. An
// unknown or already revoked session is not an error.
func RunLogout(ctx context.Context, sessionID, reason string, deps LogoutDeps) LogoutResult {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Warn == nil {
		deps.Warn = func(string, ...any) {}
	}
	if sessionID == "" {
		deps.Warn("branchauth: logout without session id")
		return LogoutResult{}
	}

	if deps.CloseAudit != nil {
		if _, err := deps.CloseAudit(ctx, sessionID, deps.Now()); err != nil {
			deps.Warn("branchauth: login audit close failed", "session_id", sessionID, "error", err)
		}
	}

	revoked, err := deps.Revoke(ctx, sessionID, reason)
	if err != nil {
		if deps.SessionNotFound != nil && errors.Is(err, deps.SessionNotFound) {
			deps.Warn("branchauth: logout of unknown session", "session_id", sessionID)
			return LogoutResult{}
		}
		return LogoutResult{Err: err}
	}
	if revoked == 0 {
		deps.Warn("branchauth: logout of already revoked session", "session_id", sessionID)
	}
	return LogoutResult{Found: true, Revoked: revoked}
}
