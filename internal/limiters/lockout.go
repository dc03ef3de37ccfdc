package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultLockoutThreshold is the number of failed logins that locks an account.
const DefaultLockoutThreshold = 5

// LockoutConfig holds configuration for the failed-login lockout policy.
// Failures are not windowed: the streak only ends on a successful login or
// an administrative unlock.
type LockoutConfig struct {
	Threshold int
}

var (
	// ErrLockoutUnavailable indicates the credential backend could not record
	// the failure.
	ErrLockoutUnavailable = errors.New("lockout backend unavailable")
)

// FailureStore is the slice of the credential store the policy needs.
// IncrementFailedLogins must be atomic so the count never decreases without
// a reset.
type FailureStore interface {
	IncrementFailedLogins(ctx context.Context, userID string, at time.Time) (int, error)
	LockAccount(ctx context.Context, userID string) error
	ResetFailedLogins(ctx context.Context, userID string) error
}

// LockoutLimiter counts failed logins per account and locks the account once
// the threshold is reached.
//
// A nil *LockoutLimiter records nothing.
type LockoutLimiter struct {
	store  FailureStore
	config LockoutConfig
}

// NewLockoutLimiter creates a lockout limiter over store.
func NewLockoutLimiter(store FailureStore, cfg LockoutConfig) *LockoutLimiter {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultLockoutThreshold
	}
	return &LockoutLimiter{store: store, config: cfg}
}

// Threshold returns the configured failure threshold.
func (l *LockoutLimiter) Threshold() int {
	if l == nil {
		return 0
	}
	return l.config.Threshold
}

// RecordFailure adds one failure at the given instant. It returns the new
// count and whether this call locked the account.
func (l *LockoutLimiter) RecordFailure(ctx context.Context, userID string, at time.Time) (int, bool, error) {
	if l == nil || userID == "" {
		return 0, false, nil
	}

	count, err := l.store.IncrementFailedLogins(ctx, userID, at)
	if err != nil {
		return 0, false, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	if count < l.config.Threshold {
		return count, false, nil
	}

	// Every caller at or past the threshold sets the flag; the write is idempotent.
	if err := l.store.LockAccount(ctx, userID); err != nil {
		return count, false, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return count, true, nil
}

// Reset clears the failure streak after a successful login.
func (l *LockoutLimiter) Reset(ctx context.Context, userID string) error {
	if l == nil || userID == "" {
		return nil
	}
	if err := l.store.ResetFailedLogins(ctx, userID); err != nil {
		return fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return nil
}
