package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/branchauth/internal"
	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps every transport-level Redis failure.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrRecordNotFound is returned when no refresh record matches a lookup.
var ErrRecordNotFound = errors.New("refresh record not found")

// ErrTokenStateConflict is returned by MarkUsed when the record was already
// used or revoked at the time of the update.
var ErrTokenStateConflict = errors.New("refresh token state conflict")

const (
	markStatusNotFound int64 = 0
	markStatusUsed     int64 = 1
	markStatusConflict int64 = 2
)

// Compare-and-swap: the record flips to used only if it is neither used nor
// revoked when the script runs.
const markUsedScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
local used = redis.call("HGET", KEYS[1], "used")
local revoked = redis.call("HGET", KEYS[1], "revoked")
if used == "1" or revoked == "1" then
  return 2
end
redis.call("HSET", KEYS[1], "used", "1", "used_at", ARGV[1])
return 1
`

var markUsedLua = redis.NewScript(markUsedScript)

// revoked never goes back to 0; the first revocation time and reason win.
const markRevokedScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
redis.call("HSET", KEYS[1], "revoked", "1")
redis.call("HSETNX", KEYS[1], "revoked_at", ARGV[1])
redis.call("HSETNX", KEYS[1], "revoked_reason", ARGV[2])
return 1
`

var markRevokedLua = redis.NewScript(markRevokedScript)

// RedisStore persists refresh records and blacklist entries.
//
// RedisStore is safe for concurrent use.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisStore creates a store under the given key prefix.
func NewRedisStore(rdb redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "ba"
	}
	return &RedisStore{redis: rdb, prefix: prefix}
}

func (s *RedisStore) tokenKey(tokenHash string) string {
	return s.prefix + ":rt:" + tokenHash
}

func (s *RedisStore) sessionKey(sessionID string) string {
	return s.prefix + ":rs:" + sessionID
}

func (s *RedisStore) userKey(userID string) string {
	return s.prefix + ":ru:" + userID
}

func (s *RedisStore) blacklistKey(sessionID string) string {
	return s.prefix + ":bl:" + sessionID
}

// SaveRefreshToken writes the record and both index entries in one MULTI.
func (s *RedisStore) SaveRefreshToken(ctx context.Context, t *RefreshToken) error {
	if t == nil || t.TokenHash == "" {
		return errors.New("refresh record requires a token hash")
	}

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.tokenKey(t.TokenHash), encodeRefreshToken(t))
		pipe.SAdd(ctx, s.sessionKey(t.SessionID), t.TokenHash)
		pipe.SAdd(ctx, s.userKey(t.UserID), t.TokenHash)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// FindRefreshToken looks up the record for value and checks it was paired
// with tokenID. A missing record or a jti mismatch both yield ErrRecordNotFound.
func (s *RedisStore) FindRefreshToken(ctx context.Context, value, tokenID string) (*RefreshToken, error) {
	tokenHash := internal.HashRefreshToken(value)
	t, err := s.findByHash(ctx, tokenHash)
	if err != nil {
		return nil, err
	}
	if t.TokenID != tokenID {
		return nil, ErrRecordNotFound
	}
	return t, nil
}

func (s *RedisStore) findByHash(ctx context.Context, tokenHash string) (*RefreshToken, error) {
	fields, err := s.redis.HGetAll(ctx, s.tokenKey(tokenHash)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrRecordNotFound
	}
	return decodeRefreshToken(tokenHash, fields)
}

// MarkUsed atomically flips t from unused to used. On success t is updated in
// place. Losing a race, or calling on a used or revoked record, returns
// ErrTokenStateConflict.
func (s *RedisStore) MarkUsed(ctx context.Context, t *RefreshToken, at time.Time) error {
	code, err := markUsedLua.Run(ctx, s.redis, []string{s.tokenKey(t.TokenHash)}, encodeTime(at)).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	switch code {
	case markStatusUsed:
		t.Used = true
		t.UsedAt = time.UnixMilli(at.UnixMilli())
		return nil
	case markStatusConflict:
		return ErrTokenStateConflict
	case markStatusNotFound:
		return ErrRecordNotFound
	default:
		return fmt.Errorf("%w: unknown mark-used status %d", ErrRedisUnavailable, code)
	}
}

// MarkRevoked flags every record revoked. Already-revoked records keep their
// original revocation time and reason.
func (s *RedisStore) MarkRevoked(ctx context.Context, tokens []*RefreshToken, reason string, at time.Time) error {
	stamp := encodeTime(at)
	for _, t := range tokens {
		if err := markRevokedLua.Run(ctx, s.redis, []string{s.tokenKey(t.TokenHash)}, stamp, reason).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		if !t.Revoked {
			t.Revoked = true
			t.RevokedAt = time.UnixMilli(at.UnixMilli())
			t.RevokedReason = reason
		}
	}
	return nil
}

// FindActiveByUser returns the user's records that are active at now.
func (s *RedisStore) FindActiveByUser(ctx context.Context, userID string, now time.Time) ([]*RefreshToken, error) {
	all, err := s.loadIndex(ctx, s.userKey(userID))
	if err != nil {
		return nil, err
	}
	active := all[:0]
	for _, t := range all {
		if t.Active(now) {
			active = append(active, t)
		}
	}
	return active, nil
}

// FindBySessionID returns every record of the session, whatever its state.
func (s *RedisStore) FindBySessionID(ctx context.Context, sessionID string) ([]*RefreshToken, error) {
	return s.loadIndex(ctx, s.sessionKey(sessionID))
}

func (s *RedisStore) loadIndex(ctx context.Context, indexKey string) ([]*RefreshToken, error) {
	hashes, err := s.redis.SMembers(ctx, indexKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []*RefreshToken{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(hashes) == 0 {
		return []*RefreshToken{}, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(hashes))
	for i, h := range hashes {
		cmds[i] = pipe.HGetAll(ctx, s.tokenKey(h))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	out := make([]*RefreshToken, 0, len(hashes))
	for i, cmd := range cmds {
		fields, cmdErr := cmd.Result()
		if cmdErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, cmdErr)
		}
		if len(fields) == 0 {
			continue
		}
		t, decErr := decodeRefreshToken(hashes[i], fields)
		if decErr != nil {
			return nil, decErr
		}
		out = append(out, t)
	}
	return out, nil
}

// AddBlacklistEntry writes e and lets Redis drop it once it can no longer
// apply. now is the caller's clock, used to size the TTL.
func (s *RedisStore) AddBlacklistEntry(ctx context.Context, e *BlacklistEntry, now time.Time) error {
	ttl := e.ExpiresAt.Sub(now)
	if ttl <= 0 {
		return nil
	}

	key := s.blacklistKey(e.SessionID)
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, encodeBlacklistEntry(e))
		pipe.PExpire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// FindBlacklistEntry returns the stored entry for sessionID, or nil when none
// exists. Expiry is not checked here.
func (s *RedisStore) FindBlacklistEntry(ctx context.Context, sessionID string) (*BlacklistEntry, error) {
	fields, err := s.redis.HGetAll(ctx, s.blacklistKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return decodeBlacklistEntry(sessionID, fields)
}

// IsBlacklisted reports whether an entry for sessionID exists with an expiry
// after now.
func (s *RedisStore) IsBlacklisted(ctx context.Context, sessionID string, now time.Time) (bool, error) {
	e, err := s.FindBlacklistEntry(ctx, sessionID)
	if err != nil || e == nil {
		return false, err
	}
	return e.ActiveAt(now), nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *RedisStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}
