package branchauth

import (
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/branchauth/credential"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestDefaultConfigNeedsOnlySecret(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected missing secret to fail validation")
	}

	cfg.JWT.Secret = []byte(strings.Repeat("k", 32))
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config with secret should validate: %v", err)
	}
	if cfg.Lockout.Threshold != 5 {
		t.Fatalf("expected lockout threshold 5, got %d", cfg.Lockout.Threshold)
	}
	if cfg.Session.BlacklistRetention != 7*24*time.Hour {
		t.Fatalf("expected 7 day retention, got %v", cfg.Session.BlacklistRetention)
	}
}

func TestConfigValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"short secret", func(c *Config) { c.JWT.Secret = []byte("short") }, "Secret"},
		{"unknown alg", func(c *Config) { c.JWT.SigningMethod = "rs256" }, "signing method"},
		{"zero access ttl", func(c *Config) { c.JWT.AccessTTL = 0 }, "AccessTTL"},
		{"refresh not longer", func(c *Config) { c.JWT.RefreshTTL = c.JWT.AccessTTL }, "RefreshTTL"},
		{"large leeway", func(c *Config) { c.JWT.Leeway = 5 * time.Minute }, "Leeway"},
		{"empty prefix", func(c *Config) { c.Session.RedisPrefix = " " }, "RedisPrefix"},
		{"prefix with colon", func(c *Config) { c.Session.RedisPrefix = "a:b" }, "RedisPrefix"},
		{"short retention", func(c *Config) { c.Session.BlacklistRetention = time.Minute }, "BlacklistRetention"},
		{"negative cache", func(c *Config) { c.Session.BlacklistCacheSize = -1 }, "BlacklistCacheSize"},
		{"weak memory", func(c *Config) { c.Password.Memory = 1024 }, "Memory"},
		{"short salt", func(c *Config) { c.Password.SaltLength = 8 }, "SaltLength"},
		{"zero threshold", func(c *Config) { c.Lockout.Threshold = 0 }, "Threshold"},
		{"audit buffer", func(c *Config) { c.Audit.Enabled = true; c.Audit.BufferSize = 0 }, "BufferSize"},
		{"histograms without metrics", func(c *Config) { c.Metrics.Enabled = false }, "EnableLatencyHistograms"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestBuilderRequiresDependencies(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	if _, err := New().WithConfig(testConfig()).WithCredentialStore(credential.NewMemoryStore()).Build(); err == nil {
		t.Fatal("expected missing redis to fail")
	}
	if _, err := New().WithConfig(testConfig()).WithRedis(rdb).Build(); err == nil {
		t.Fatal("expected missing credential store to fail")
	}

	b := New().WithConfig(testConfig()).WithRedis(rdb).WithCredentialStore(credential.NewMemoryStore())
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer engine.Close()
	if _, err := b.Build(); err == nil {
		t.Fatal("expected builder reuse to fail")
	}
}

func TestBuilderCopiesSecret(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	cfg := testConfig()
	engine, err := New().WithConfig(cfg).WithRedis(rdb).WithCredentialStore(credential.NewMemoryStore()).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer engine.Close()

	cfg.JWT.Secret[0] ^= 0xff
	if engine.config.JWT.Secret[0] == cfg.JWT.Secret[0] {
		t.Fatal("engine must not share the caller's secret slice")
	}
}
