package branchauth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/MrEthical07/branchauth/credential"
	internalaudit "github.com/MrEthical07/branchauth/internal/audit"
	"github.com/MrEthical07/branchauth/internal/flows"
	"github.com/MrEthical07/branchauth/internal/limiters"
	"github.com/MrEthical07/branchauth/jwt"
	"github.com/MrEthical07/branchauth/loginaudit"
	"github.com/MrEthical07/branchauth/password"
	"github.com/MrEthical07/branchauth/refresh"
	"github.com/MrEthical07/branchauth/session"
)

// Engine is the authentication orchestrator: login, refresh, logout, request
// authentication and session management.
//
// Engine instances are built once by [Builder.Build] and are safe for
// concurrent use.
type Engine struct {
	config       Config
	logger       *slog.Logger
	clock        func() time.Time
	credentials  credential.Store
	loginAudit   loginaudit.Store
	passwordHash *password.Argon2
	jwtManager   *jwt.Manager
	sessionStore *session.RedisStore
	issuer       *refresh.Issuer
	lockout      *limiters.LockoutLimiter
	audit        *internalaudit.Dispatcher
	metrics      *Metrics
}

// Close describes the close operation and its observable behavior.
//
// Close flushes buffered audit events and stops the dispatcher. It does not
// close the Redis client or credential store; their owners do.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns how many audit events were discarded.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() bool {
	return e != nil && e.issuer != nil && e.jwtManager != nil && e.credentials != nil && e.passwordHash != nil
}

// Ping measures the round trip to the session store.
func (e *Engine) Ping(ctx context.Context) (time.Duration, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}
	return e.sessionStore.Ping(ctx)
}

// HashPassword derives the encoded hash stored on a credential.
func (e *Engine) HashPassword(plain string) (string, error) {
	if !e.ready() {
		return "", ErrEngineNotReady
	}
	return e.passwordHash.Hash(plain)
}

// Login describes the login operation and its observable behavior.
//
// Login looks up the credential, rejects inactive or locked accounts,
// verifies the password (counting failures toward lockout) and on success
// issues a new session. Unknown usernames and wrong passwords both return
// ErrInvalidCredentials. One login audit row is written per call; failing to
// write it never fails the login.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	started := time.Now()
	defer func() {
		e.metrics.Observe(MetricLoginLatency, time.Since(started))
	}()

	if req.IP == "" {
		req.IP = clientIPFromContext(ctx)
	}
	if req.UserAgent == "" {
		req.UserAgent = userAgentFromContext(ctx)
	}

	res := flows.RunLogin(ctx, flows.LoginInput{
		Username:  req.Username,
		Password:  req.Password,
		IP:        req.IP,
		UserAgent: req.UserAgent,
		DeviceID:  req.DeviceID,
	}, e.loginDeps(req))
	if res.Err != nil {
		e.logger.Info("branchauth: login rejected",
			"username", req.Username,
			"reason", res.Reason,
			"ip", req.IP,
		)
		return nil, res.Err
	}

	return resultFromPair(res.Pair, userView(res.Pair.Subject)), nil
}

func (e *Engine) loginDeps(req LoginRequest) flows.LoginDeps {
	deps := flows.LoginDeps{
		Now:                e.clock,
		GetByUsername:      e.credentials.GetByUsername,
		UpdatePasswordHash: e.credentials.UpdatePasswordHash,
		VerifyPassword:     e.passwordHash.Verify,
		RecordFailure:      e.lockout.RecordFailure,
		ResetFailures:      e.lockout.Reset,
		Issue:              e.issuer.Issue,
		MetricInc:          func(id int) { e.metricInc(MetricID(id)) },
		EmitAudit: func(ctx context.Context, event string, success bool, userID, username, sessionID, reason string) {
			e.emitAudit(ctx, event, success, auditFields{
				userID:    userID,
				username:  username,
				sessionID: sessionID,
				ip:        req.IP,
				userAgent: req.UserAgent,
				reason:    reason,
			})
		},
		Warn: e.logger.Warn,
		Metrics: flows.LoginMetrics{
			LoginSuccess:      int(MetricLoginSuccess),
			LoginFailure:      int(MetricLoginFailure),
			LoginLocked:       int(MetricLoginLocked),
			SessionCreated:    int(MetricSessionCreated),
			AuditWriteFailure: int(MetricAuditWriteFailure),
			ResetFailure:      int(MetricLockoutResetFailure),
		},
		Events: flows.LoginEvents{
			LoginSuccess:  AuditEventLoginSuccess,
			LoginFailure:  AuditEventLoginFailure,
			AccountLocked: AuditEventAccountLocked,
		},
		Errors: flows.LoginErrors{
			EngineNotReady:     ErrEngineNotReady,
			InvalidCredentials: ErrInvalidCredentials,
			AccountInactive:    ErrAccountInactive,
			AccountLocked:      ErrAccountLocked,
		},
	}
	if e.loginAudit != nil {
		deps.AppendAudit = e.loginAudit.Append
	}
	if e.config.Password.UpgradeOnLogin {
		deps.PasswordNeedsUpgrade = e.passwordHash.NeedsUpgrade
		deps.HashPassword = e.passwordHash.Hash
	}
	return deps
}

// Refresh exchanges a refresh token and the access token it was issued with
// for a new pair in the same session. A refresh token rotates at most once;
// presenting it again returns ErrRefreshTokenReuse and revokes every session
// of the user.
func (e *Engine) Refresh(ctx context.Context, req RefreshRequest) (*LoginResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if req.IP == "" {
		req.IP = clientIPFromContext(ctx)
	}
	if req.UserAgent == "" {
		req.UserAgent = userAgentFromContext(ctx)
	}

	pair, err := e.issuer.Rotate(ctx, req.AccessToken, req.RefreshToken, refresh.Client{
		IP:        req.IP,
		UserAgent: req.UserAgent,
		DeviceID:  req.DeviceID,
	})
	if err != nil {
		e.refreshFailed(ctx, req, err)
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, AuditEventRefreshSuccess, true, auditFields{
		userID:    pair.Subject.UserID,
		username:  pair.Subject.Username,
		branchID:  pair.Subject.BranchID,
		sessionID: pair.SessionID,
		ip:        req.IP,
		userAgent: req.UserAgent,
	})
	return resultFromPair(pair, userView(pair.Subject)), nil
}

func (e *Engine) refreshFailed(ctx context.Context, req RefreshRequest, err error) {
	e.metricInc(MetricRefreshFailure)

	fields := auditFields{ip: req.IP, userAgent: req.UserAgent}
	// The access token only identifies the caller here; it proves nothing.
	if claims, claimErr := e.jwtManager.ValidateExpired(req.AccessToken); claimErr == nil {
		fields.userID = claims.UserID
		fields.username = claims.Username
		fields.sessionID = claims.SessionID
	}

	event := AuditEventRefreshFailure
	switch {
	case errors.Is(err, ErrRefreshTokenReuse):
		e.metricInc(MetricRefreshReuseDetected)
		e.metricInc(MetricLogoutAll)
		event = AuditEventRefreshReuseDetected
		fields.reason = refresh.ReasonReuseDetected
	case errors.Is(err, ErrRefreshTokenExpired):
		e.metricInc(MetricRefreshExpired)
		fields.reason = "refresh_token_expired"
	case errors.Is(err, ErrAccountInactive), errors.Is(err, ErrAccountLocked):
		fields.reason = refresh.ReasonAccountStatus
	case errors.Is(err, ErrInvalidToken):
		fields.reason = "invalid_access_token"
	case errors.Is(err, ErrInvalidRefreshToken):
		fields.reason = "invalid_refresh_token"
	default:
		fields.reason = loginaudit.ReasonInternalError
		e.logger.Error("branchauth: refresh failed", "session_id", fields.sessionID, "error", err)
	}

	e.logger.Warn("branchauth: refresh rejected",
		"user_id", fields.userID,
		"session_id", fields.sessionID,
		"reason", fields.reason,
	)
	e.emitAudit(ctx, event, false, fields)
}

// Logout ends sessionID: the login audit row is closed and every refresh
// record of the session is revoked and blacklisted. Logging out an unknown
// or already revoked session succeeds.
func (e *Engine) Logout(ctx context.Context, sessionID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	res := e.endSession(ctx, sessionID, refresh.ReasonLogout)
	if res.Err != nil {
		return res.Err
	}
	if res.Found {
		e.metricInc(MetricLogout)
	}
	e.emitAudit(ctx, AuditEventLogout, true, auditFields{sessionID: sessionID})
	return nil
}

func (e *Engine) endSession(ctx context.Context, sessionID, reason string) flows.LogoutResult {
	deps := flows.LogoutDeps{
		Now:             e.clock,
		Revoke:          e.issuer.Revoke,
		Warn:            e.logger.Warn,
		SessionNotFound: ErrSessionNotFound,
	}
	if e.loginAudit != nil {
		deps.CloseAudit = e.loginAudit.CloseSession
	}
	return flows.RunLogout(ctx, sessionID, reason, deps)
}

// Authenticate validates an access token (signature, issuer, audience and
// expiry) and rejects blacklisted sessions. It is the per-request check the
// SessionGuard middleware runs before authorization.
func (e *Engine) Authenticate(ctx context.Context, accessToken string) (*CurrentUser, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	started := time.Now()
	defer func() {
		e.metrics.Observe(MetricAuthenticateLatency, time.Since(started))
	}()

	claims, err := e.jwtManager.Parse(accessToken)
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}

	revoked, err := e.issuer.IsBlacklisted(ctx, claims.SessionID)
	if err != nil {
		return nil, err
	}
	if revoked {
		e.metricInc(MetricBlacklistHit)
		e.emitAudit(ctx, AuditEventBlacklistHit, false, auditFields{
			userID:    claims.UserID,
			username:  claims.Username,
			sessionID: claims.SessionID,
		})
		return nil, ErrSessionRevoked
	}

	return &CurrentUser{
		UserID:     claims.UserID,
		Username:   claims.Username,
		Email:      claims.Email,
		GivenName:  claims.GivenName,
		FamilyName: claims.FamilyName,
		BranchID:   claims.BranchID,
		Roles:      claims.Roles,
		SessionID:  claims.SessionID,
		TokenID:    claims.TokenID,
		ExpiresAt:  claims.ExpiresAt,
	}, nil
}

// IsBlacklisted reports whether sessionID has been revoked and its
// blacklist entry has not yet expired.
func (e *Engine) IsBlacklisted(ctx context.Context, sessionID string) (bool, error) {
	if !e.ready() {
		return false, ErrEngineNotReady
	}
	return e.issuer.IsBlacklisted(ctx, sessionID)
}

// UnlockAccount clears the locked flag and the failure streak of userID.
func (e *Engine) UnlockAccount(ctx context.Context, userID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if err := e.credentials.Unlock(ctx, userID); err != nil {
		return err
	}
	e.metricInc(MetricAccountUnlocked)
	e.logger.Info("branchauth: account unlocked", "user_id", userID)
	e.emitAudit(ctx, AuditEventAccountUnlocked, true, auditFields{userID: userID})
	return nil
}

// resolveSubject reloads the credential during rotation so that disabled or
// locked accounts cannot keep refreshing and new tokens carry current claims.
func (e *Engine) resolveSubject(ctx context.Context, userID string) (refresh.Subject, error) {
	cred, err := e.credentials.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			return refresh.Subject{}, ErrAccountInactive
		}
		return refresh.Subject{}, err
	}
	if !cred.Active {
		return refresh.Subject{}, ErrAccountInactive
	}
	if cred.Locked {
		return refresh.Subject{}, ErrAccountLocked
	}
	return flows.SubjectFromCredential(cred), nil
}
