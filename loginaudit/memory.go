package loginaudit

import (
	"context"
	"sync"
	"time"

	"github.com/MrEthical07/branchauth/internal/ids"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps records in process, in insertion order.
type MemoryStore struct {
	mu      sync.Mutex
	ids     *ids.Generator
	records []Record
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{ids: ids.NewGenerator(nil)}
}

func (s *MemoryStore) Append(_ context.Context, r *Record) error {
	if r.ID == "" {
		r.ID = s.ids.New(r.AttemptedAt)
	}
	s.mu.Lock()
	s.records = append(s.records, *r)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) CloseSession(_ context.Context, sessionID string, at time.Time) (bool, error) {
	if sessionID == "" {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		r := &s.records[i]
		if r.SessionID == sessionID && r.LogoutAt == nil {
			t := at
			r.LogoutAt = &t
			return true, nil
		}
	}
	return false, nil
}

// Records returns a copy of every stored record.
func (s *MemoryStore) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}
