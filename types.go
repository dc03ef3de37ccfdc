package branchauth

import (
	"time"

	"github.com/MrEthical07/branchauth/credential"
	"github.com/MrEthical07/branchauth/refresh"
)

// Credential is the auth view of a user record.
type Credential = credential.Credential

// CredentialStore reads and writes credentials.
type CredentialStore = credential.Store

// LoginRequest is one login attempt.
type LoginRequest struct {
	Username  string
	Password  string
	IP        string
	UserAgent string
	DeviceID  string
}

// RefreshRequest exchanges a refresh token for a new pair. AccessToken is
// the access token the refresh token was issued with; it may be expired.
type RefreshRequest struct {
	AccessToken  string
	RefreshToken string
	IP           string
	UserAgent    string
	DeviceID     string
}

// TokenTypeBearer is the token type reported with every issued pair.
const TokenTypeBearer = "Bearer"

// UserView is the public projection of a credential returned on login.
type UserView struct {
	ID         string   `json:"id"`
	Username   string   `json:"username"`
	Email      string   `json:"email,omitempty"`
	GivenName  string   `json:"given_name,omitempty"`
	FamilyName string   `json:"family_name,omitempty"`
	BranchID   string   `json:"branch_id,omitempty"`
	Roles      []string `json:"roles,omitempty"`
}

// LoginResult is returned by [Engine.Login] and [Engine.Refresh].
type LoginResult struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
	TokenType    string    `json:"token_type"`
	User         *UserView `json:"user,omitempty"`

	SessionID string `json:"-"`
}

// CurrentUser is the per-request projection of a validated access token.
// It is populated once by [Engine.Authenticate] and never mutated.
type CurrentUser struct {
	UserID     string
	Username   string
	Email      string
	GivenName  string
	FamilyName string
	BranchID   string
	Roles      []string
	SessionID  string
	TokenID    string
	ExpiresAt  time.Time
}

// HasRole reports whether the user carries role. Roles are carried, not
// evaluated, by this package.
func (u *CurrentUser) HasRole(role string) bool {
	if u == nil {
		return false
	}
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// SessionInfo describes one active session.
type SessionInfo struct {
	SessionID string    `json:"session_id"`
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	DeviceID  string    `json:"device_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Current   bool      `json:"current"`
}

func userView(s refresh.Subject) *UserView {
	return &UserView{
		ID:         s.UserID,
		Username:   s.Username,
		Email:      s.Email,
		GivenName:  s.GivenName,
		FamilyName: s.FamilyName,
		BranchID:   s.BranchID,
		Roles:      append([]string(nil), s.Roles...),
	}
}

func resultFromPair(p *refresh.Pair, user *UserView) *LoginResult {
	return &LoginResult{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		ExpiresIn:    p.ExpiresIn,
		TokenType:    TokenTypeBearer,
		User:         user,
		SessionID:    p.SessionID,
	}
}
