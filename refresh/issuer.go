package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"time"

	"github.com/MrEthical07/branchauth/internal"
	"github.com/MrEthical07/branchauth/jwt"
	"github.com/MrEthical07/branchauth/session"
)

// Revocation reasons recorded on refresh records and blacklist entries.
const (
	ReasonLogout        = "logout"
	ReasonRevoked       = "revoked"
	ReasonLogoutAll     = "logout_all"
	ReasonLogoutOthers  = "logout_others"
	ReasonReuseDetected = "reuse_detected"
	ReasonAccountStatus = "account_status"
)

// DefaultBlacklistRetention outlives any access token still in circulation.
const DefaultBlacklistRetention = 7 * 24 * time.Hour

// Codec mints and validates access tokens.
type Codec interface {
	Issue(c jwt.Claims, now time.Time, ttl time.Duration) (string, error)
	ValidateExpired(token string) (*jwt.Claims, error)
}

// Store is the persistence contract for refresh records and blacklist
// entries. Every write is durable before it returns.
type Store interface {
	SaveRefreshToken(ctx context.Context, t *session.RefreshToken) error
	FindRefreshToken(ctx context.Context, value, tokenID string) (*session.RefreshToken, error)
	MarkUsed(ctx context.Context, t *session.RefreshToken, at time.Time) error
	MarkRevoked(ctx context.Context, tokens []*session.RefreshToken, reason string, at time.Time) error
	FindActiveByUser(ctx context.Context, userID string, now time.Time) ([]*session.RefreshToken, error)
	FindBySessionID(ctx context.Context, sessionID string) ([]*session.RefreshToken, error)
	AddBlacklistEntry(ctx context.Context, e *session.BlacklistEntry, now time.Time) error
	FindBlacklistEntry(ctx context.Context, sessionID string) (*session.BlacklistEntry, error)
}

// Subject is the identity an access token is minted for.
type Subject struct {
	UserID     string
	Username   string
	Email      string
	GivenName  string
	FamilyName string
	BranchID   string
	Roles      []string
}

// Client carries request metadata recorded on refresh records.
type Client struct {
	IP        string
	UserAgent string
	DeviceID  string
}

// Pair is a freshly issued access/refresh token pair.
type Pair struct {
	AccessToken      string
	RefreshToken     string
	ExpiresIn        int64
	SessionID        string
	TokenID          string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	Subject          Subject
}

// SubjectResolver reloads the current identity for userID during rotation.
// Returning ErrAccountInactive or ErrAccountLocked ends the session.
type SubjectResolver func(ctx context.Context, userID string) (Subject, error)

// Config tunes an Issuer. Zero durations fall back to defaults.
type Config struct {
	AccessTTL          time.Duration
	RefreshTTL         time.Duration
	BlacklistRetention time.Duration
	Now                func() time.Time
	Logger             *slog.Logger
	Cache              *session.BlacklistCache
	Resolver           SubjectResolver
}

// Issuer orchestrates token issuance, rotation and revocation.
//
// Issuer is safe for concurrent use; all coordination happens in the store.
type Issuer struct {
	codec  Codec
	store  Store
	config Config
}

// NewIssuer validates cfg and returns an Issuer.
func NewIssuer(codec Codec, store Store, cfg Config) (*Issuer, error) {
	if codec == nil || store == nil {
		return nil, errors.New("refresh: codec and store are required")
	}
	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL == 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	if cfg.BlacklistRetention == 0 {
		cfg.BlacklistRetention = DefaultBlacklistRetention
	}
	if cfg.AccessTTL < 0 || cfg.RefreshTTL < 0 || cfg.BlacklistRetention < 0 {
		return nil, errors.New("refresh: durations must be positive")
	}
	if cfg.RefreshTTL <= cfg.AccessTTL {
		return nil, errors.New("refresh: refresh TTL must exceed access TTL")
	}
	if cfg.BlacklistRetention < cfg.AccessTTL {
		return nil, errors.New("refresh: blacklist retention must cover the access TTL")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Issuer{codec: codec, store: store, config: cfg}, nil
}

// AccessTTL returns the configured access-token lifetime.
func (i *Issuer) AccessTTL() time.Duration {
	return i.config.AccessTTL
}

// Issue starts a new session for sub and returns its first token pair.
func (i *Issuer) Issue(ctx context.Context, sub Subject, client Client) (*Pair, error) {
	now := i.config.Now()
	sessionID, err := internal.NewSessionID()
	if err != nil {
		return nil, err
	}
	return i.issueInSession(ctx, sub, sessionID, client, now)
}

func (i *Issuer) issueInSession(ctx context.Context, sub Subject, sessionID string, client Client, now time.Time) (*Pair, error) {
	if sub.UserID == "" {
		return nil, errors.New("refresh: subject user id is required")
	}
	tokenID, err := internal.NewTokenID()
	if err != nil {
		return nil, err
	}
	value, err := internal.NewRefreshTokenValue()
	if err != nil {
		return nil, err
	}

	access, err := i.codec.Issue(jwt.Claims{
		UserID:     sub.UserID,
		Username:   sub.Username,
		Email:      sub.Email,
		GivenName:  sub.GivenName,
		FamilyName: sub.FamilyName,
		TokenID:    tokenID,
		SessionID:  sessionID,
		BranchID:   sub.BranchID,
		Roles:      sub.Roles,
	}, now, i.config.AccessTTL)
	if err != nil {
		return nil, err
	}

	rec := &session.RefreshToken{
		TokenHash: internal.HashRefreshToken(value),
		UserID:    sub.UserID,
		TokenID:   tokenID,
		SessionID: sessionID,
		ExpiresAt: now.Add(i.config.RefreshTTL),
		IP:        client.IP,
		UserAgent: client.UserAgent,
		DeviceID:  client.DeviceID,
		CreatedAt: now,
	}
	if err := i.store.SaveRefreshToken(ctx, rec); err != nil {
		return nil, err
	}

	return &Pair{
		AccessToken:      access,
		RefreshToken:     value,
		ExpiresIn:        int64(i.config.AccessTTL / time.Second),
		SessionID:        sessionID,
		TokenID:          tokenID,
		AccessExpiresAt:  now.Add(i.config.AccessTTL),
		RefreshExpiresAt: rec.ExpiresAt,
		Subject:          sub,
	}, nil
}

// Rotate exchanges a refresh token, together with the access token it was
// paired with, for a new pair in the same session. Each refresh token value
// rotates successfully at most once; presenting it again revokes every active
// session of the user.
func (i *Issuer) Rotate(ctx context.Context, accessToken, refreshToken string, client Client) (*Pair, error) {
	now := i.config.Now()

	if err := internal.ValidRefreshTokenFormat(refreshToken); err != nil {
		return nil, ErrInvalidRefreshToken
	}
	claims, err := i.codec.ValidateExpired(accessToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	rec, err := i.store.FindRefreshToken(ctx, refreshToken, claims.TokenID)
	if err != nil {
		if errors.Is(err, session.ErrRecordNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}
	if rec.UserID != claims.UserID || rec.SessionID != claims.SessionID {
		return nil, ErrInvalidRefreshToken
	}

	if rec.Used || rec.Revoked {
		return nil, i.handleReuse(ctx, rec, now)
	}
	if !now.Before(rec.ExpiresAt) {
		return nil, ErrRefreshTokenExpired
	}

	sub := subjectFromClaims(claims)
	if i.config.Resolver != nil {
		sub, err = i.config.Resolver(ctx, rec.UserID)
		if err != nil {
			if errors.Is(err, ErrAccountInactive) || errors.Is(err, ErrAccountLocked) {
				if _, revokeErr := i.revokeSession(ctx, rec.SessionID, ReasonAccountStatus, now); revokeErr != nil {
					i.config.Logger.Warn("branchauth: revoke after account status failure",
						"session_id", rec.SessionID, "error", revokeErr)
				}
			}
			return nil, err
		}
	}

	if err := i.store.MarkUsed(ctx, rec, now); err != nil {
		switch {
		case errors.Is(err, session.ErrTokenStateConflict):
			return nil, i.handleReuse(ctx, rec, now)
		case errors.Is(err, session.ErrRecordNotFound):
			return nil, ErrInvalidRefreshToken
		default:
			return nil, err
		}
	}

	if client.DeviceID == "" {
		client.DeviceID = rec.DeviceID
	}
	return i.issueInSession(ctx, sub, rec.SessionID, client, now)
}

func (i *Issuer) handleReuse(ctx context.Context, rec *session.RefreshToken, now time.Time) error {
	i.config.Logger.Warn("branchauth: refresh token reuse detected",
		"user_id", rec.UserID,
		"session_id", rec.SessionID,
		"jti", rec.TokenID,
	)
	if _, err := i.revokeAllForUser(ctx, rec.UserID, "", ReasonReuseDetected, now); err != nil {
		return errors.Join(ErrRefreshTokenReuse, err)
	}
	return ErrRefreshTokenReuse
}

func subjectFromClaims(c *jwt.Claims) Subject {
	return Subject{
		UserID:     c.UserID,
		Username:   c.Username,
		Email:      c.Email,
		GivenName:  c.GivenName,
		FamilyName: c.FamilyName,
		BranchID:   c.BranchID,
		Roles:      slices.Clone(c.Roles),
	}
}

// Revoke revokes every refresh record of sessionID and blacklists the
// session. It returns how many records changed state; an unknown session
// yields ErrSessionNotFound.
func (i *Issuer) Revoke(ctx context.Context, sessionID, reason string) (int, error) {
	return i.revokeSession(ctx, sessionID, reason, i.config.Now())
}

func (i *Issuer) revokeSession(ctx context.Context, sessionID, reason string, now time.Time) (int, error) {
	records, err := i.store.FindBySessionID(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, ErrSessionNotFound
	}

	pending := make([]*session.RefreshToken, 0, len(records))
	for _, r := range records {
		if !r.Revoked {
			pending = append(pending, r)
		}
	}
	if len(pending) > 0 {
		if err := i.store.MarkRevoked(ctx, pending, reason, now); err != nil {
			return 0, err
		}
	}
	if err := i.blacklist(ctx, sessionID, records[0].UserID, reason, now); err != nil {
		return len(pending), err
	}
	return len(pending), nil
}

// RevokeAllForUser revokes every active session of userID and returns the
// number of sessions revoked.
func (i *Issuer) RevokeAllForUser(ctx context.Context, userID, reason string) (int, error) {
	return i.revokeAllForUser(ctx, userID, "", reason, i.config.Now())
}

// RevokeAllForUserExcept is RevokeAllForUser sparing exceptSessionID.
func (i *Issuer) RevokeAllForUserExcept(ctx context.Context, userID, exceptSessionID, reason string) (int, error) {
	return i.revokeAllForUser(ctx, userID, exceptSessionID, reason, i.config.Now())
}

func (i *Issuer) revokeAllForUser(ctx context.Context, userID, exceptSessionID, reason string, now time.Time) (int, error) {
	active, err := i.store.FindActiveByUser(ctx, userID, now)
	if err != nil {
		return 0, err
	}

	bySession := make(map[string][]*session.RefreshToken)
	for _, r := range active {
		if r.SessionID == exceptSessionID {
			continue
		}
		bySession[r.SessionID] = append(bySession[r.SessionID], r)
	}

	var errs []error
	revoked := 0
	for sessionID, records := range bySession {
		if err := i.store.MarkRevoked(ctx, records, reason, now); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := i.blacklist(ctx, sessionID, userID, reason, now); err != nil {
			errs = append(errs, err)
			continue
		}
		revoked++
	}
	return revoked, errors.Join(errs...)
}

func (i *Issuer) blacklist(ctx context.Context, sessionID, userID, reason string, now time.Time) error {
	entry := &session.BlacklistEntry{
		SessionID:     sessionID,
		UserID:        userID,
		Reason:        reason,
		BlacklistedAt: now,
		ExpiresAt:     now.Add(i.config.BlacklistRetention),
	}
	if err := i.store.AddBlacklistEntry(ctx, entry, now); err != nil {
		return err
	}
	i.config.Cache.Remember(entry, now)
	return nil
}

// IsBlacklisted reports whether sessionID has an unexpired blacklist entry.
func (i *Issuer) IsBlacklisted(ctx context.Context, sessionID string) (bool, error) {
	now := i.config.Now()
	if i.config.Cache.Lookup(sessionID, now) {
		return true, nil
	}
	entry, err := i.store.FindBlacklistEntry(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if entry == nil || !entry.ActiveAt(now) {
		return false, nil
	}
	i.config.Cache.Remember(entry, now)
	return true, nil
}

// ActiveSessions returns the user's active refresh records, newest first.
// Each active session has exactly one active record.
func (i *Issuer) ActiveSessions(ctx context.Context, userID string) ([]*session.RefreshToken, error) {
	active, err := i.store.FindActiveByUser(ctx, userID, i.config.Now())
	if err != nil {
		return nil, err
	}
	sort.Slice(active, func(a, b int) bool {
		return active[a].CreatedAt.After(active[b].CreatedAt)
	})
	return active, nil
}

// SessionRecords returns every record of sessionID regardless of state.
func (i *Issuer) SessionRecords(ctx context.Context, sessionID string) ([]*session.RefreshToken, error) {
	return i.store.FindBySessionID(ctx, sessionID)
}
