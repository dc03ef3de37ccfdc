package session

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultBlacklistCacheSize bounds the in-process blacklist cache.
const DefaultBlacklistCacheSize = 4096

// BlacklistCache remembers positive blacklist hits until their expiry so hot
// revoked sessions do not hit Redis on every request. Misses are never
// cached: a session may be blacklisted at any moment by another process.
//
// A nil *BlacklistCache is valid and caches nothing.
type BlacklistCache struct {
	entries *lru.Cache[string, time.Time]
}

// NewBlacklistCache returns a cache holding at most size sessions.
func NewBlacklistCache(size int) (*BlacklistCache, error) {
	if size <= 0 {
		size = DefaultBlacklistCacheSize
	}
	entries, err := lru.New[string, time.Time](size)
	if err != nil {
		return nil, err
	}
	return &BlacklistCache{entries: entries}, nil
}

// Lookup reports a cached, still-active blacklist hit for sessionID.
func (c *BlacklistCache) Lookup(sessionID string, now time.Time) bool {
	if c == nil {
		return false
	}
	expiresAt, ok := c.entries.Get(sessionID)
	if !ok {
		return false
	}
	if !expiresAt.After(now) {
		c.entries.Remove(sessionID)
		return false
	}
	return true
}

// Remember caches e. Entries already expired are ignored.
func (c *BlacklistCache) Remember(e *BlacklistEntry, now time.Time) {
	if c == nil || e == nil || !e.ActiveAt(now) {
		return
	}
	c.entries.Add(e.SessionID, e.ExpiresAt)
}

// Len returns the number of cached sessions.
func (c *BlacklistCache) Len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}
