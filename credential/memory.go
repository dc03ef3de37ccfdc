package credential

import (
	"context"
	"strings"
	"sync"
	"time"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-process Store for tests and single-node tooling.
type MemoryStore struct {
	mu    sync.Mutex
	byID  map[string]*Credential
	names map[string]string
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:  make(map[string]*Credential),
		names: make(map[string]string),
	}
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func (s *MemoryStore) GetByUsername(_ context.Context, username string) (*Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.names[normalizeUsername(username)]
	if !ok {
		return nil, ErrNotFound
	}
	return s.byID[id].Clone(), nil
}

func (s *MemoryStore) GetByID(_ context.Context, userID string) (*Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return c.Clone(), nil
}

func (s *MemoryStore) Save(_ context.Context, c *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := normalizeUsername(c.Username)
	if owner, ok := s.names[name]; ok && owner != c.ID {
		return ErrConflict
	}
	next := c.Clone()
	if prev, ok := s.byID[c.ID]; ok {
		delete(s.names, normalizeUsername(prev.Username))
		next.Locked = next.Locked || prev.Locked
		if prev.FailedLoginCount > next.FailedLoginCount {
			next.FailedLoginCount = prev.FailedLoginCount
		}
		if prev.FirstFailedLoginAt != nil {
			t := *prev.FirstFailedLoginAt
			next.FirstFailedLoginAt = &t
		}
	}
	s.byID[c.ID] = next
	s.names[name] = c.ID
	return nil
}

func (s *MemoryStore) UpdatePasswordHash(_ context.Context, userID, hash string) error {
	return s.mutate(userID, func(c *Credential) { c.PasswordHash = hash })
}

func (s *MemoryStore) IncrementFailedLogins(_ context.Context, userID string, at time.Time) (int, error) {
	var count int
	err := s.mutate(userID, func(c *Credential) {
		c.FailedLoginCount++
		if c.FirstFailedLoginAt == nil {
			t := at
			c.FirstFailedLoginAt = &t
		}
		count = c.FailedLoginCount
	})
	return count, err
}

func (s *MemoryStore) LockAccount(_ context.Context, userID string) error {
	return s.mutate(userID, func(c *Credential) { c.Locked = true })
}

func (s *MemoryStore) ResetFailedLogins(_ context.Context, userID string) error {
	return s.mutate(userID, func(c *Credential) {
		c.FailedLoginCount = 0
		c.FirstFailedLoginAt = nil
	})
}

func (s *MemoryStore) Unlock(_ context.Context, userID string) error {
	return s.mutate(userID, func(c *Credential) {
		c.Locked = false
		c.FailedLoginCount = 0
		c.FirstFailedLoginAt = nil
	})
}

func (s *MemoryStore) mutate(userID string, fn func(*Credential)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[userID]
	if !ok {
		return ErrNotFound
	}
	fn(c)
	return nil
}
