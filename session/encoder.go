package session

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrRecordCorrupt is returned when a stored hash is missing required fields
// or holds unparsable values.
var ErrRecordCorrupt = errors.New("session record corrupt")

const (
	fieldUserID        = "user_id"
	fieldTokenID       = "jti"
	fieldSessionID     = "session_id"
	fieldExpiresAt     = "expires_at"
	fieldUsed          = "used"
	fieldRevoked       = "revoked"
	fieldIP            = "ip"
	fieldUserAgent     = "user_agent"
	fieldDeviceID      = "device_id"
	fieldCreatedAt     = "created_at"
	fieldUsedAt        = "used_at"
	fieldRevokedAt     = "revoked_at"
	fieldRevokedReason = "revoked_reason"
	fieldReason        = "reason"
	fieldBlacklistedAt = "blacklisted_at"
)

func encodeRefreshToken(t *RefreshToken) map[string]interface{} {
	fields := map[string]interface{}{
		fieldUserID:    t.UserID,
		fieldTokenID:   t.TokenID,
		fieldSessionID: t.SessionID,
		fieldExpiresAt: encodeTime(t.ExpiresAt),
		fieldUsed:      encodeBool(t.Used),
		fieldRevoked:   encodeBool(t.Revoked),
		fieldIP:        t.IP,
		fieldUserAgent: t.UserAgent,
		fieldDeviceID:  t.DeviceID,
		fieldCreatedAt: encodeTime(t.CreatedAt),
	}
	if !t.UsedAt.IsZero() {
		fields[fieldUsedAt] = encodeTime(t.UsedAt)
	}
	if !t.RevokedAt.IsZero() {
		fields[fieldRevokedAt] = encodeTime(t.RevokedAt)
		fields[fieldRevokedReason] = t.RevokedReason
	}
	return fields
}

func decodeRefreshToken(tokenHash string, fields map[string]string) (*RefreshToken, error) {
	userID := fields[fieldUserID]
	tokenID := fields[fieldTokenID]
	sessionID := fields[fieldSessionID]
	if userID == "" || tokenID == "" || sessionID == "" {
		return nil, fmt.Errorf("%w: missing identity fields", ErrRecordCorrupt)
	}

	expiresAt, err := decodeTime(fields[fieldExpiresAt])
	if err != nil || expiresAt.IsZero() {
		return nil, fmt.Errorf("%w: expires_at", ErrRecordCorrupt)
	}
	createdAt, err := decodeTime(fields[fieldCreatedAt])
	if err != nil {
		return nil, fmt.Errorf("%w: created_at", ErrRecordCorrupt)
	}
	usedAt, err := decodeTime(fields[fieldUsedAt])
	if err != nil {
		return nil, fmt.Errorf("%w: used_at", ErrRecordCorrupt)
	}
	revokedAt, err := decodeTime(fields[fieldRevokedAt])
	if err != nil {
		return nil, fmt.Errorf("%w: revoked_at", ErrRecordCorrupt)
	}

	return &RefreshToken{
		TokenHash:     tokenHash,
		UserID:        userID,
		TokenID:       tokenID,
		SessionID:     sessionID,
		ExpiresAt:     expiresAt,
		Used:          fields[fieldUsed] == "1",
		Revoked:       fields[fieldRevoked] == "1",
		IP:            fields[fieldIP],
		UserAgent:     fields[fieldUserAgent],
		DeviceID:      fields[fieldDeviceID],
		CreatedAt:     createdAt,
		UsedAt:        usedAt,
		RevokedAt:     revokedAt,
		RevokedReason: fields[fieldRevokedReason],
	}, nil
}

func encodeBlacklistEntry(e *BlacklistEntry) map[string]interface{} {
	return map[string]interface{}{
		fieldUserID:        e.UserID,
		fieldReason:        e.Reason,
		fieldBlacklistedAt: encodeTime(e.BlacklistedAt),
		fieldExpiresAt:     encodeTime(e.ExpiresAt),
	}
}

func decodeBlacklistEntry(sessionID string, fields map[string]string) (*BlacklistEntry, error) {
	expiresAt, err := decodeTime(fields[fieldExpiresAt])
	if err != nil || expiresAt.IsZero() {
		return nil, fmt.Errorf("%w: blacklist expires_at", ErrRecordCorrupt)
	}
	blacklistedAt, err := decodeTime(fields[fieldBlacklistedAt])
	if err != nil {
		return nil, fmt.Errorf("%w: blacklisted_at", ErrRecordCorrupt)
	}
	return &BlacklistEntry{
		SessionID:     sessionID,
		UserID:        fields[fieldUserID],
		Reason:        fields[fieldReason],
		BlacklistedAt: blacklistedAt,
		ExpiresAt:     expiresAt,
	}, nil
}

// Timestamps are stored as unix milliseconds; empty means unset.
func encodeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func decodeTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}

func encodeBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
