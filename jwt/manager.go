package jwt

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod names a supported HMAC algorithm.
type SigningMethod string

const (
	// MethodHS256 signs with HMAC-SHA256 (default).
	MethodHS256 SigningMethod = "hs256"
	// MethodHS384 signs with HMAC-SHA384.
	MethodHS384 SigningMethod = "hs384"
	// MethodHS512 signs with HMAC-SHA512.
	MethodHS512 SigningMethod = "hs512"

	minSecretBytes = 32
)

// ErrTokenInvalid is wrapped by every parse and validation failure.
var ErrTokenInvalid = errors.New("invalid token")

// Config defines signing and validation parameters. Secret is process-wide
// and read-only after construction.
type Config struct {
	SigningMethod SigningMethod
	Secret        []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
	Now           func() time.Time
}

// Manager is the access-token codec.
//
// Manager instances are immutable after NewManager and safe for concurrent use.
type Manager struct {
	config Config
	method jwt.SigningMethod
}

// AccessClaims is the wire shape of an access token. Claim names are part of
// the interop contract and must stay stable.
type AccessClaims struct {
	Username   string   `json:"username"`
	Email      string   `json:"email,omitempty"`
	GivenName  string   `json:"given_name,omitempty"`
	FamilyName string   `json:"family_name,omitempty"`
	SessionID  string   `json:"sid"`
	BranchID   string   `json:"branch_id,omitempty"`
	Roles      []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Claims is the decoded, transport-independent view of an access token.
type Claims struct {
	UserID     string
	Username   string
	Email      string
	GivenName  string
	FamilyName string
	TokenID    string
	SessionID  string
	BranchID   string
	Roles      []string
	IssuedAt   time.Time
	ExpiresAt  time.Time
}

// NewManager validates cfg and returns a codec.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if len(cfg.Secret) < minSecretBytes {
		return nil, fmt.Errorf("signing secret must be at least %d bytes", minSecretBytes)
	}
	if cfg.SigningMethod == "" {
		cfg.SigningMethod = MethodHS256
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	var method jwt.SigningMethod
	switch cfg.SigningMethod {
	case MethodHS256:
		method = jwt.SigningMethodHS256
	case MethodHS384:
		method = jwt.SigningMethodHS384
	case MethodHS512:
		method = jwt.SigningMethodHS512
	default:
		return nil, errors.New("unsupported signing method")
	}

	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)
	cfg.Secret = secret

	return &Manager{config: cfg, method: method}, nil
}

// Algorithm returns the JOSE alg name in use.
func (m *Manager) Algorithm() string {
	return m.method.Alg()
}

// Issue signs c with iat=nbf=now and exp=now+ttl. TokenID, SessionID and
// UserID are required.
func (m *Manager) Issue(c Claims, now time.Time, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", errors.New("invalid TTL")
	}
	if c.UserID == "" || c.TokenID == "" || c.SessionID == "" {
		return "", errors.New("subject, token id and session id are required")
	}

	claims := AccessClaims{
		Username:   c.Username,
		Email:      c.Email,
		GivenName:  c.GivenName,
		FamilyName: c.FamilyName,
		SessionID:  c.SessionID,
		BranchID:   c.BranchID,
		Roles:      slices.Clone(c.Roles),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   c.UserID,
			ID:        c.TokenID,
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	token := jwt.NewWithClaims(m.method, claims)
	if m.config.KeyID != "" {
		token.Header["kid"] = m.config.KeyID
	}

	return token.SignedString(m.config.Secret)
}

// Parse fully validates an access token, expiry included.
func (m *Manager) Parse(tokenStr string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithTimeFunc(m.config.Now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Audience != "" {
		options = append(options, jwt.WithAudience(m.config.Audience))
	}

	return m.parse(tokenStr, options)
}

// ValidateExpired checks signature, algorithm, issuer, audience and claim
// structure but not expiry. It is only for refresh, where the presented
// access token is expected to have expired.
func (m *Manager) ValidateExpired(tokenStr string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithoutClaimsValidation(),
	}

	return m.parse(tokenStr, options)
}

func (m *Manager) parse(tokenStr string, options []jwt.ParserOption) (*Claims, error) {
	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &AccessClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != m.method.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		if m.config.KeyID != "" {
			kid, _ := t.Header["kid"].(string)
			if kid != m.config.KeyID {
				return nil, errors.New("unknown kid")
			}
		}
		return m.config.Secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	ac, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, jwt.ErrTokenInvalidClaims)
	}

	// WithoutClaimsValidation skips iss/aud too; those are never optional.
	if m.config.Issuer != "" && ac.Issuer != m.config.Issuer {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, jwt.ErrTokenInvalidIssuer)
	}
	if m.config.Audience != "" && !slices.Contains(ac.Audience, m.config.Audience) {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, jwt.ErrTokenInvalidAudience)
	}
	if ac.Subject == "" || ac.ID == "" || ac.SessionID == "" {
		return nil, fmt.Errorf("%w: missing required claims", ErrTokenInvalid)
	}

	out := &Claims{
		UserID:     ac.Subject,
		Username:   ac.Username,
		Email:      ac.Email,
		GivenName:  ac.GivenName,
		FamilyName: ac.FamilyName,
		TokenID:    ac.ID,
		SessionID:  ac.SessionID,
		BranchID:   ac.BranchID,
		Roles:      ac.Roles,
	}
	if ac.IssuedAt != nil {
		out.IssuedAt = ac.IssuedAt.Time
	}
	if ac.ExpiresAt != nil {
		out.ExpiresAt = ac.ExpiresAt.Time
	}
	return out, nil
}
