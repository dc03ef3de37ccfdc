package session

import "time"

// RefreshToken is the persisted state of one refresh token. The opaque value
// itself is never stored; TokenHash identifies the record.
type RefreshToken struct {
	TokenHash string
	UserID    string
	TokenID   string
	SessionID string
	ExpiresAt time.Time

	Used    bool
	Revoked bool

	IP        string
	UserAgent string
	DeviceID  string

	CreatedAt     time.Time
	UsedAt        time.Time
	RevokedAt     time.Time
	RevokedReason string
}

// Active reports whether the token is unused, unrevoked and unexpired at now.
func (t *RefreshToken) Active(now time.Time) bool {
	return !t.Used && !t.Revoked && now.Before(t.ExpiresAt)
}

// BlacklistEntry denies a session until ExpiresAt.
type BlacklistEntry struct {
	SessionID     string
	UserID        string
	Reason        string
	BlacklistedAt time.Time
	ExpiresAt     time.Time
}

// ActiveAt reports whether the entry still applies at now.
func (e *BlacklistEntry) ActiveAt(now time.Time) bool {
	return e.ExpiresAt.After(now)
}
