package branchauth

import (
	"context"
	"io"
	"log/slog"
	"time"

	internalaudit "github.com/MrEthical07/branchauth/internal/audit"
)

// AuditEvent is one security event.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the dispatcher goroutine.
type AuditSink = internalaudit.Sink

// NoOpSink discards events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink forwards events into a buffered channel.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// SlogSink logs events through a *slog.Logger.
type SlogSink = internalaudit.SlogSink

// NewChannelSink creates a ChannelSink with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a JSONWriterSink over w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewSlogSink creates a SlogSink; a nil logger means slog.Default().
func NewSlogSink(logger *slog.Logger) *SlogSink {
	return internalaudit.NewSlogSink(logger)
}

// Audit event types.
const (
	AuditEventLoginSuccess         = "login_success"
	AuditEventLoginFailure         = "login_failure"
	AuditEventAccountLocked        = "account_locked"
	AuditEventAccountUnlocked      = "account_unlocked"
	AuditEventRefreshSuccess       = "refresh_success"
	AuditEventRefreshFailure       = "refresh_failure"
	AuditEventRefreshReuseDetected = "refresh_reuse_detected"
	AuditEventLogout               = "logout"
	AuditEventSessionRevoked       = "session_revoked"
	AuditEventLogoutAll            = "logout_all"
	AuditEventBlacklistHit         = "blacklist_hit"
)

type auditFields struct {
	userID    string
	username  string
	branchID  string
	sessionID string
	ip        string
	userAgent string
	reason    string
	metadata  map[string]string
}

func (e *Engine) emitAudit(ctx context.Context, eventType string, success bool, f auditFields) {
	if e == nil || e.audit == nil {
		return
	}
	if f.ip == "" {
		f.ip = clientIPFromContext(ctx)
	}
	if f.userAgent == "" {
		f.userAgent = userAgentFromContext(ctx)
	}

	e.audit.Emit(ctx, AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		UserID:    f.userID,
		Username:  f.username,
		BranchID:  f.branchID,
		SessionID: f.sessionID,
		IP:        f.ip,
		UserAgent: f.userAgent,
		Success:   success,
		Reason:    f.reason,
		Metadata:  f.metadata,
	})
}

func (e *Engine) now() time.Time {
	if e == nil || e.clock == nil {
		return time.Now()
	}
	return e.clock()
}
