package branchauth

import (
	"context"

	"github.com/MrEthical07/branchauth/refresh"
	"github.com/MrEthical07/branchauth/session"
)

// GetActiveSessions lists the user's sessions that still hold an unused,
// unrevoked and unexpired refresh token, newest first. currentSessionID, if
// set, is flagged as Current.
func (e *Engine) GetActiveSessions(ctx context.Context, userID, currentSessionID string) ([]SessionInfo, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	records, err := e.issuer.ActiveSessions(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]SessionInfo, 0, len(records))
	for _, r := range records {
		out = append(out, sessionInfo(r, currentSessionID))
	}
	return out, nil
}

// GetActiveSessionsCount returns len(GetActiveSessions) without building the
// projections.
func (e *Engine) GetActiveSessionsCount(ctx context.Context, userID string) (int, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}
	records, err := e.issuer.ActiveSessions(ctx, userID)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// RevokeSession revokes one session owned by userID. Sessions that do not
// exist or belong to another user are left untouched and reported as done.
func (e *Engine) RevokeSession(ctx context.Context, userID, sessionID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	records, err := e.issuer.SessionRecords(ctx, sessionID)
	if err != nil {
		return err
	}
	if len(records) == 0 || records[0].UserID != userID {
		e.logger.Warn("branchauth: revoke of unknown session",
			"user_id", userID,
			"session_id", sessionID,
		)
		return nil
	}

	res := e.endSession(ctx, sessionID, refresh.ReasonRevoked)
	if res.Err != nil {
		return res.Err
	}
	if res.Revoked > 0 {
		e.metricInc(MetricSessionRevoked)
	}
	e.emitAudit(ctx, AuditEventSessionRevoked, true, auditFields{
		userID:    userID,
		sessionID: sessionID,
		reason:    refresh.ReasonRevoked,
	})
	return nil
}

// RevokeAllSessions revokes every active session of userID and returns how
// many were revoked.
func (e *Engine) RevokeAllSessions(ctx context.Context, userID string) (int, error) {
	return e.revokeAll(ctx, userID, "", refresh.ReasonLogoutAll)
}

// RevokeAllSessionsExceptCurrent is RevokeAllSessions sparing
// currentSessionID ("log out everywhere else").
func (e *Engine) RevokeAllSessionsExceptCurrent(ctx context.Context, userID, currentSessionID string) (int, error) {
	return e.revokeAll(ctx, userID, currentSessionID, refresh.ReasonLogoutOthers)
}

func (e *Engine) revokeAll(ctx context.Context, userID, exceptSessionID, reason string) (int, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}

	// Collected first so the audit rows can be closed once the sessions are gone.
	active, err := e.issuer.ActiveSessions(ctx, userID)
	if err != nil {
		return 0, err
	}

	var n int
	if exceptSessionID == "" {
		n, err = e.issuer.RevokeAllForUser(ctx, userID, reason)
	} else {
		n, err = e.issuer.RevokeAllForUserExcept(ctx, userID, exceptSessionID, reason)
	}
	if err != nil {
		e.logger.Error("branchauth: revoke all sessions incomplete",
			"user_id", userID,
			"revoked", n,
			"error", err,
		)
		return n, err
	}

	if e.loginAudit != nil {
		now := e.clock()
		for _, r := range active {
			if r.SessionID == exceptSessionID {
				continue
			}
			if _, err := e.loginAudit.CloseSession(ctx, r.SessionID, now); err != nil {
				e.logger.Warn("branchauth: login audit close failed", "session_id", r.SessionID, "error", err)
			}
		}
	}

	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, AuditEventLogoutAll, true, auditFields{
		userID:    userID,
		sessionID: exceptSessionID,
		reason:    reason,
	})
	return n, nil
}

func sessionInfo(r *session.RefreshToken, currentSessionID string) SessionInfo {
	return SessionInfo{
		SessionID: r.SessionID,
		IP:        r.IP,
		UserAgent: r.UserAgent,
		DeviceID:  r.DeviceID,
		CreatedAt: r.CreatedAt,
		ExpiresAt: r.ExpiresAt,
		Current:   currentSessionID != "" && r.SessionID == currentSessionID,
	}
}
