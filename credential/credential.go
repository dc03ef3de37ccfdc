// Package credential holds the authentication-relevant subset of a user
// record and the stores that persist it.
package credential

import (
	"context"
	"errors"
	"slices"
	"time"
)

var (
	// ErrNotFound is returned when no credential matches a lookup.
	ErrNotFound = errors.New("credential not found")
	// ErrConflict is returned when a username is already taken.
	ErrConflict = errors.New("credential conflict")
)

// Credential is the auth view of a user.
type Credential struct {
	ID           string
	Username     string
	Email        string
	GivenName    string
	FamilyName   string
	PasswordHash string
	BranchID     string
	Active       bool
	Locked       bool
	Roles        []string

	FailedLoginCount   int
	FirstFailedLoginAt *time.Time
}

// Clone returns a deep copy.
func (c *Credential) Clone() *Credential {
	if c == nil {
		return nil
	}
	out := *c
	out.Roles = slices.Clone(c.Roles)
	if c.FirstFailedLoginAt != nil {
		t := *c.FirstFailedLoginAt
		out.FirstFailedLoginAt = &t
	}
	return &out
}

// Store reads and writes credentials. The counter methods must be atomic in
// the backing store so concurrent failures never lose an increment.
type Store interface {
	GetByUsername(ctx context.Context, username string) (*Credential, error)
	GetByID(ctx context.Context, userID string) (*Credential, error)

	// Save upserts c. It never clears an existing lock or failure streak.
	Save(ctx context.Context, c *Credential) error
	UpdatePasswordHash(ctx context.Context, userID, hash string) error

	// IncrementFailedLogins adds one failure, records at as the first failure
	// of the streak if none is set, and returns the new count.
	IncrementFailedLogins(ctx context.Context, userID string, at time.Time) (int, error)
	// LockAccount sets the locked flag. It never clears it.
	LockAccount(ctx context.Context, userID string) error
	// ResetFailedLogins zeroes the counter and clears the streak timestamp.
	ResetFailedLogins(ctx context.Context, userID string) error
	// Unlock clears the locked flag and the failure streak.
	Unlock(ctx context.Context, userID string) error
}
