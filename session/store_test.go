package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/branchauth/internal"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisStoreTest(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return NewRedisStore(rdb, "ba"), mr
}

func testRecord(value, sessionID string, now time.Time) *RefreshToken {
	return &RefreshToken{
		TokenHash: internal.HashRefreshToken(value),
		UserID:    "u-1",
		TokenID:   "jti-" + value,
		SessionID: sessionID,
		ExpiresAt: now.Add(7 * 24 * time.Hour),
		IP:        "10.0.0.1",
		UserAgent: "test-agent",
		DeviceID:  "dev-1",
		CreatedAt: now,
	}
}

func TestSaveAndFindRefreshToken(t *testing.T) {
	store, mr := newRedisStoreTest(t)
	ctx := context.Background()
	now := time.UnixMilli(1_700_000_000_000)

	rec := testRecord("value-a", "sid-1", now)
	if err := store.SaveRefreshToken(ctx, rec); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.FindRefreshToken(ctx, "value-a", "jti-value-a")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.UserID != "u-1" || got.SessionID != "sid-1" || got.DeviceID != "dev-1" || got.UserAgent != "test-agent" {
		t.Fatalf("unexpected record: %+v", got)
	}
	if !got.ExpiresAt.Equal(rec.ExpiresAt) || !got.CreatedAt.Equal(now) {
		t.Fatalf("timestamps did not round-trip: %+v", got)
	}
	if got.Used || got.Revoked {
		t.Fatal("fresh record must be active")
	}

	// the plaintext value never reaches Redis
	if mr.Exists("ba:rt:value-a") {
		t.Fatal("record keyed by plaintext value")
	}
	key := "ba:rt:" + rec.TokenHash
	if !mr.Exists(key) {
		t.Fatal("expected record keyed by hash")
	}
	if mr.TTL(key) != 0 {
		t.Fatal("refresh records must not expire")
	}
}

func TestFindRefreshTokenRequiresMatchingJTI(t *testing.T) {
	store, _ := newRedisStoreTest(t)
	ctx := context.Background()
	now := time.UnixMilli(1_700_000_000_000)

	if err := store.SaveRefreshToken(ctx, testRecord("value-a", "sid-1", now)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := store.FindRefreshToken(ctx, "value-a", "other-jti"); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound for jti mismatch, got %v", err)
	}
	if _, err := store.FindRefreshToken(ctx, "unknown", "jti-value-a"); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound for unknown value, got %v", err)
	}
}

func TestMarkUsedIsOneShot(t *testing.T) {
	store, _ := newRedisStoreTest(t)
	ctx := context.Background()
	now := time.UnixMilli(1_700_000_000_000)

	rec := testRecord("value-a", "sid-1", now)
	if err := store.SaveRefreshToken(ctx, rec); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.MarkUsed(ctx, rec, now); err != nil {
		t.Fatalf("first mark used: %v", err)
	}
	if !rec.Used || !rec.UsedAt.Equal(now) {
		t.Fatalf("expected in-place update, got %+v", rec)
	}
	if err := store.MarkUsed(ctx, rec, now); !errors.Is(err, ErrTokenStateConflict) {
		t.Fatalf("expected conflict on second mark, got %v", err)
	}

	got, err := store.FindRefreshToken(ctx, "value-a", "jti-value-a")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if !got.Used || !got.UsedAt.Equal(now) {
		t.Fatalf("expected persisted used flag, got %+v", got)
	}
}

func TestMarkUsedRejectsRevoked(t *testing.T) {
	store, _ := newRedisStoreTest(t)
	ctx := context.Background()
	now := time.UnixMilli(1_700_000_000_000)

	rec := testRecord("value-a", "sid-1", now)
	if err := store.SaveRefreshToken(ctx, rec); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.MarkRevoked(ctx, []*RefreshToken{rec}, "logout", now); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	stale := testRecord("value-a", "sid-1", now)
	if err := store.MarkUsed(ctx, stale, now); !errors.Is(err, ErrTokenStateConflict) {
		t.Fatalf("expected conflict for revoked record, got %v", err)
	}
}

func TestMarkUsedMissingRecord(t *testing.T) {
	store, _ := newRedisStoreTest(t)
	rec := testRecord("ghost", "sid-1", time.Now())
	if err := store.MarkUsed(context.Background(), rec, time.Now()); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestMarkUsedConcurrentSingleWinner(t *testing.T) {
	store, _ := newRedisStoreTest(t)
	ctx := context.Background()
	now := time.UnixMilli(1_700_000_000_000)

	if err := store.SaveRefreshToken(ctx, testRecord("value-a", "sid-1", now)); err != nil {
		t.Fatalf("save: %v", err)
	}

	const workers = 16
	var (
		wg        sync.WaitGroup
		winners   atomic.Int32
		conflicts atomic.Int32
		start     = make(chan struct{})
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := testRecord("value-a", "sid-1", now)
			<-start
			switch err := store.MarkUsed(ctx, rec, now); {
			case err == nil:
				winners.Add(1)
			case errors.Is(err, ErrTokenStateConflict):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if winners.Load() != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners.Load())
	}
	if conflicts.Load() != workers-1 {
		t.Fatalf("expected %d conflicts, got %d", workers-1, conflicts.Load())
	}
}

func TestMarkRevokedIsMonotone(t *testing.T) {
	store, _ := newRedisStoreTest(t)
	ctx := context.Background()
	now := time.UnixMilli(1_700_000_000_000)

	rec := testRecord("value-a", "sid-1", now)
	if err := store.SaveRefreshToken(ctx, rec); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.MarkRevoked(ctx, []*RefreshToken{rec}, "logout", now); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	later := now.Add(time.Hour)
	again := testRecord("value-a", "sid-1", now)
	if err := store.MarkRevoked(ctx, []*RefreshToken{again}, "reuse_detected", later); err != nil {
		t.Fatalf("second revoke: %v", err)
	}

	got, err := store.FindRefreshToken(ctx, "value-a", "jti-value-a")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if !got.Revoked || got.RevokedReason != "logout" || !got.RevokedAt.Equal(now) {
		t.Fatalf("expected first revocation to stick, got %+v", got)
	}
}

func TestFindActiveByUserAndSession(t *testing.T) {
	store, _ := newRedisStoreTest(t)
	ctx := context.Background()
	now := time.UnixMilli(1_700_000_000_000)

	active := testRecord("a", "sid-1", now)
	used := testRecord("b", "sid-1", now)
	revoked := testRecord("c", "sid-2", now)
	expired := testRecord("d", "sid-3", now)
	expired.ExpiresAt = now.Add(-time.Second)
	for _, r := range []*RefreshToken{active, used, revoked, expired} {
		if err := store.SaveRefreshToken(ctx, r); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	if err := store.MarkUsed(ctx, used, now); err != nil {
		t.Fatalf("mark used: %v", err)
	}
	if err := store.MarkRevoked(ctx, []*RefreshToken{revoked}, "test", now); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	got, err := store.FindActiveByUser(ctx, "u-1", now)
	if err != nil {
		t.Fatalf("find active: %v", err)
	}
	if len(got) != 1 || got[0].TokenHash != active.TokenHash {
		t.Fatalf("expected only the active record, got %d records", len(got))
	}

	bySession, err := store.FindBySessionID(ctx, "sid-1")
	if err != nil {
		t.Fatalf("find by session: %v", err)
	}
	if len(bySession) != 2 {
		t.Fatalf("expected both records of sid-1, got %d", len(bySession))
	}

	none, err := store.FindBySessionID(ctx, "missing")
	if err != nil || len(none) != 0 {
		t.Fatalf("expected empty result for unknown session, got %v %v", none, err)
	}
}

func TestBlacklistExpiry(t *testing.T) {
	store, mr := newRedisStoreTest(t)
	ctx := context.Background()
	now := time.UnixMilli(1_700_000_000_000)

	entry := &BlacklistEntry{
		SessionID:     "sid-1",
		UserID:        "u-1",
		Reason:        "logout",
		BlacklistedAt: now,
		ExpiresAt:     now.Add(7 * 24 * time.Hour),
	}
	if err := store.AddBlacklistEntry(ctx, entry, now); err != nil {
		t.Fatalf("add blacklist: %v", err)
	}

	ok, err := store.IsBlacklisted(ctx, "sid-1", now.Add(time.Hour))
	if err != nil || !ok {
		t.Fatalf("expected blacklisted before expiry, got %v %v", ok, err)
	}
	ok, err = store.IsBlacklisted(ctx, "sid-1", entry.ExpiresAt)
	if err != nil || ok {
		t.Fatalf("expected not blacklisted at expiry, got %v %v", ok, err)
	}
	ok, err = store.IsBlacklisted(ctx, "other", now)
	if err != nil || ok {
		t.Fatalf("expected unknown session not blacklisted, got %v %v", ok, err)
	}

	got, err := store.FindBlacklistEntry(ctx, "sid-1")
	if err != nil || got == nil || got.Reason != "logout" || got.UserID != "u-1" {
		t.Fatalf("unexpected entry %+v, %v", got, err)
	}

	mr.FastForward(8 * 24 * time.Hour)
	got, err = store.FindBlacklistEntry(ctx, "sid-1")
	if err != nil || got != nil {
		t.Fatalf("expected Redis to drop the entry after its TTL, got %+v %v", got, err)
	}
}

func TestAddBlacklistEntrySkipsExpired(t *testing.T) {
	store, mr := newRedisStoreTest(t)
	now := time.UnixMilli(1_700_000_000_000)
	entry := &BlacklistEntry{SessionID: "sid-1", ExpiresAt: now.Add(-time.Second)}
	if err := store.AddBlacklistEntry(context.Background(), entry, now); err != nil {
		t.Fatalf("add: %v", err)
	}
	if mr.Exists("ba:bl:sid-1") {
		t.Fatal("expired entry must not be written")
	}
}

func TestRedisUnavailable(t *testing.T) {
	store, mr := newRedisStoreTest(t)
	mr.Close()

	ctx := context.Background()
	now := time.Now()
	if err := store.SaveRefreshToken(ctx, testRecord("x", "sid", now)); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
	if _, err := store.IsBlacklisted(ctx, "sid", now); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
	if _, err := store.Ping(ctx); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable from ping, got %v", err)
	}
}
