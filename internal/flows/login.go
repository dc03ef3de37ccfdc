package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/branchauth/credential"
	"github.com/MrEthical07/branchauth/loginaudit"
	"github.com/MrEthical07/branchauth/refresh"
)

// LoginInput is one login attempt as received from the transport.
type LoginInput struct {
	Username  string
	Password  string
	IP        string
	UserAgent string
	DeviceID  string
}

// LoginResult carries the issued pair on success. On failure Err is set and
// Reason holds the internal reason code, which must not reach the caller.
type LoginResult struct {
	Pair       *refresh.Pair
	Credential *credential.Credential
	Reason     string
	Err        error
}

// LoginMetrics carries metric IDs needed by the login flow.
type LoginMetrics struct {
	LoginSuccess      int
	LoginFailure      int
	LoginLocked       int
	SessionCreated    int
	AuditWriteFailure int
	ResetFailure      int
}

// LoginEvents carries audit event names used by the login flow.
type LoginEvents struct {
	LoginSuccess  string
	LoginFailure  string
	AccountLocked string
}

// LoginErrors carries host-level sentinel errors used by the login flow.
type LoginErrors struct {
	EngineNotReady     error
	InvalidCredentials error
	AccountInactive    error
	AccountLocked      error
}

// LoginDeps captures login dependencies.
type LoginDeps struct {
	Now func() time.Time

	GetByUsername      func(context.Context, string) (*credential.Credential, error)
	UpdatePasswordHash func(context.Context, string, string) error

	VerifyPassword       func(password, encodedHash string) bool
	PasswordNeedsUpgrade func(string) (bool, error)
	HashPassword         func(string) (string, error)

	RecordFailure func(context.Context, string, time.Time) (int, bool, error)
	ResetFailures func(context.Context, string) error

	Issue       func(context.Context, refresh.Subject, refresh.Client) (*refresh.Pair, error)
	AppendAudit func(context.Context, *loginaudit.Record) error

	MetricInc func(int)
	EmitAudit func(ctx context.Context, event string, success bool, userID, username, sessionID, reason string)
	Warn      func(string, ...any)

	Metrics LoginMetrics
	Events  LoginEvents
	Errors  LoginErrors
}

// RunLogin executes the login state machine: lookup, account status,
// password verification with lockout accounting, then issuance. Exactly one
// login audit record is appended per call.
func RunLogin(ctx context.Context, in LoginInput, deps LoginDeps) LoginResult {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, string, string, string) {}
	}
	if deps.Warn == nil {
		deps.Warn = func(string, ...any) {}
	}
	if deps.GetByUsername == nil || deps.VerifyPassword == nil || deps.Issue == nil {
		return LoginResult{Err: deps.Errors.EngineNotReady, Reason: loginaudit.ReasonInternalError}
	}

	now := deps.Now()
	record := &loginaudit.Record{
		Username:    in.Username,
		IP:          in.IP,
		UserAgent:   in.UserAgent,
		AttemptedAt: now,
	}

	fail := func(userID, reason, event string, err error) LoginResult {
		record.UserID = userID
		record.Reason = reason
		appendAudit(ctx, deps, record)
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, event, false, userID, in.Username, "", reason)
		return LoginResult{Reason: reason, Err: err}
	}

	cred, err := deps.GetByUsername(ctx, in.Username)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			return fail("", loginaudit.ReasonUserNotFound, deps.Events.LoginFailure, deps.Errors.InvalidCredentials)
		}
		deps.Warn("branchauth: credential lookup failed", "error", err)
		return fail("", loginaudit.ReasonInternalError, deps.Events.LoginFailure, err)
	}

	if !cred.Active {
		return fail(cred.ID, loginaudit.ReasonAccountInactive, deps.Events.LoginFailure, deps.Errors.AccountInactive)
	}
	if cred.Locked {
		deps.MetricInc(deps.Metrics.LoginLocked)
		return fail(cred.ID, loginaudit.ReasonAccountLocked, deps.Events.LoginFailure, deps.Errors.AccountLocked)
	}

	if in.Password == "" || !deps.VerifyPassword(in.Password, cred.PasswordHash) {
		if deps.RecordFailure == nil {
			return fail(cred.ID, loginaudit.ReasonPasswordMismatch, deps.Events.LoginFailure, deps.Errors.InvalidCredentials)
		}
		count, locked, err := deps.RecordFailure(ctx, cred.ID, now)
		if err != nil {
			deps.Warn("branchauth: failed to record login failure", "user_id", cred.ID, "error", err)
		}
		if locked {
			deps.MetricInc(deps.Metrics.LoginLocked)
			deps.Warn("branchauth: account locked after repeated failures", "user_id", cred.ID, "failures", count)
			return fail(cred.ID, loginaudit.ReasonLockedNow, deps.Events.AccountLocked, deps.Errors.InvalidCredentials)
		}
		return fail(cred.ID, loginaudit.ReasonPasswordMismatch, deps.Events.LoginFailure, deps.Errors.InvalidCredentials)
	}

	resetFailures(ctx, deps, cred)
	upgradePasswordHash(ctx, deps, cred, in.Password)

	pair, err := deps.Issue(ctx, SubjectFromCredential(cred), refresh.Client{
		IP:        in.IP,
		UserAgent: in.UserAgent,
		DeviceID:  in.DeviceID,
	})
	if err != nil {
		deps.Warn("branchauth: token issuance failed", "user_id", cred.ID, "error", err)
		return fail(cred.ID, loginaudit.ReasonInternalError, deps.Events.LoginFailure, err)
	}

	record.UserID = cred.ID
	record.Success = true
	record.SessionID = pair.SessionID
	appendAudit(ctx, deps, record)

	deps.MetricInc(deps.Metrics.LoginSuccess)
	deps.MetricInc(deps.Metrics.SessionCreated)
	deps.EmitAudit(ctx, deps.Events.LoginSuccess, true, cred.ID, cred.Username, pair.SessionID, "")

	return LoginResult{Pair: pair, Credential: cred}
}

// SubjectFromCredential projects the token-relevant fields of c.
func SubjectFromCredential(c *credential.Credential) refresh.Subject {
	return refresh.Subject{
		UserID:     c.ID,
		Username:   c.Username,
		Email:      c.Email,
		GivenName:  c.GivenName,
		FamilyName: c.FamilyName,
		BranchID:   c.BranchID,
		Roles:      append([]string(nil), c.Roles...),
	}
}

// appendAudit persists record. The login decision never depends on it.
func appendAudit(ctx context.Context, deps LoginDeps, record *loginaudit.Record) {
	if deps.AppendAudit == nil {
		return
	}
	if err := deps.AppendAudit(ctx, record); err != nil {
		deps.MetricInc(deps.Metrics.AuditWriteFailure)
		deps.Warn("branchauth: login audit write failed", "username", record.Username, "error", err)
	}
}

// resetFailures clears the lockout counter after a correct password,
// whatever count was loaded. Errors never block issuance.
func resetFailures(ctx context.Context, deps LoginDeps, cred *credential.Credential) {
	if deps.ResetFailures == nil {
		return
	}
	if err := deps.ResetFailures(ctx, cred.ID); err != nil {
		deps.MetricInc(deps.Metrics.ResetFailure)
		deps.Warn("branchauth: failed to reset login failures", "user_id", cred.ID, "error", err)
		return
	}
	cred.FailedLoginCount = 0
	cred.FirstFailedLoginAt = nil
}

func upgradePasswordHash(ctx context.Context, deps LoginDeps, cred *credential.Credential, password string) {
	if deps.PasswordNeedsUpgrade == nil || deps.HashPassword == nil || deps.UpdatePasswordHash == nil {
		return
	}
	needs, err := deps.PasswordNeedsUpgrade(cred.PasswordHash)
	if err != nil || !needs {
		return
	}
	upgraded, err := deps.HashPassword(password)
	if err != nil {
		deps.Warn("branchauth: password rehash failed", "user_id", cred.ID, "error", err)
		return
	}
	if err := deps.UpdatePasswordHash(ctx, cred.ID, upgraded); err != nil {
		deps.Warn("branchauth: password hash upgrade not persisted", "user_id", cred.ID, "error", err)
		return
	}
	cred.PasswordHash = upgraded
}
