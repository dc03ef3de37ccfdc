// Command branchauth-racecheck seeds refresh records in Redis and fires
// concurrent rotations at each one. Exactly one contender per record must
// win; any record with zero or several winners is reported and the command
// exits non-zero.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/branchauth/internal"
	"github.com/MrEthical07/branchauth/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type record struct {
	token   *session.RefreshToken
	winners int64
}

func main() {
	var (
		records     = flag.Int("records", 20000, "number of refresh records to seed")
		contenders  = flag.Int("contenders", 8, "concurrent rotations per record")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		users       = flag.Int("users", 500, "distinct users the records are spread over")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "racecheck", "key prefix")
	)
	flag.Parse()

	if *records <= 0 || *contenders <= 1 || *concurrency <= 0 || *users <= 0 {
		fmt.Fprintln(os.Stderr, "records, concurrency and users must be > 0, contenders must be > 1")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	store := session.NewRedisStore(client, *prefix)

	fmt.Printf("seeding %d refresh records...\n", *records)
	startSeed := time.Now()
	seeded, err := seed(ctx, store, *records, *users)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	stats := runRace(ctx, store, seeded, *contenders, *concurrency)

	fmt.Println("---- results ----")
	printStats(stats)

	bad := 0
	for i := range seeded {
		if w := atomic.LoadInt64(&seeded[i].winners); w != 1 {
			bad++
			if bad <= 10 {
				fmt.Fprintf(os.Stderr, "record %s: %d winners\n", seeded[i].token.TokenHash[:12], w)
			}
		}
	}
	if bad > 0 || stats.errors > 0 {
		fmt.Fprintf(os.Stderr, "FAIL: %d records without a single winner, %d store errors\n", bad, stats.errors)
		os.Exit(1)
	}
	fmt.Println("OK: every record rotated exactly once")
}

func seed(ctx context.Context, store *session.RedisStore, n, users int) ([]record, error) {
	now := time.Now()
	out := make([]record, n)
	for i := 0; i < n; i++ {
		value, err := internal.NewRefreshTokenValue()
		if err != nil {
			return nil, err
		}
		sid, err := internal.NewSessionID()
		if err != nil {
			return nil, err
		}
		jti, err := internal.NewTokenID()
		if err != nil {
			return nil, err
		}
		t := &session.RefreshToken{
			TokenHash: internal.HashRefreshToken(value),
			UserID:    fmt.Sprintf("u-%d", i%users),
			TokenID:   jti,
			SessionID: sid,
			ExpiresAt: now.Add(time.Hour),
			UserAgent: "racecheck",
			CreatedAt: now,
		}
		if err := store.SaveRefreshToken(ctx, t); err != nil {
			return nil, err
		}
		out[i] = record{token: t}
	}
	return out, nil
}

type job struct {
	idx int
}

type raceStats struct {
	total     time.Duration
	attempts  int
	wins      int64
	conflicts int64
	errors    int64
	p50       time.Duration
	p95       time.Duration
	p99       time.Duration
	opsPerS   float64
}

// runRace queues every contender of a record back to back so they land on
// different workers at roughly the same time.
func runRace(ctx context.Context, store *session.RedisStore, seeded []record, contenders, concurrency int) raceStats {
	var (
		wg        sync.WaitGroup
		wins      int64
		conflicts int64
		failures  int64
		latencies = make([]time.Duration, 0, len(seeded)*contenders)
		mu        sync.Mutex
	)

	jobs := make(chan job, concurrency)
	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				r := &seeded[j.idx]
				// Each contender works on its own copy, like independent requests.
				snapshot := *r.token
				t0 := time.Now()
				err := store.MarkUsed(ctx, &snapshot, time.Now())
				d := time.Since(t0)
				switch {
				case err == nil:
					atomic.AddInt64(&r.winners, 1)
					atomic.AddInt64(&wins, 1)
				case errors.Is(err, session.ErrTokenStateConflict):
					atomic.AddInt64(&conflicts, 1)
				default:
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}()
	}

	for i := range seeded {
		for c := 0; c < contenders; c++ {
			jobs <- job{idx: i}
		}
	}
	close(jobs)
	wg.Wait()
	total := time.Since(start)

	s := raceStats{
		total:     total,
		attempts:  len(latencies),
		wins:      wins,
		conflicts: conflicts,
		errors:    failures,
	}
	if len(latencies) == 0 {
		return s
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	s.p50 = percentile(latencies, 50)
	s.p95 = percentile(latencies, 95)
	s.p99 = percentile(latencies, 99)
	s.opsPerS = float64(len(latencies)) / total.Seconds()
	return s
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(s raceStats) {
	fmt.Printf("mark-used: attempts=%d wins=%d conflicts=%d errors=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		s.attempts,
		s.wins,
		s.conflicts,
		s.errors,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
