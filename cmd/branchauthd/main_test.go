package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("BRANCHAUTH_PG_DSN", "postgres://auth@localhost/auth")
	t.Setenv("BRANCHAUTH_JWT_SECRET", strings.Repeat("s", 32))
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.RedisPrefix != "ba" || cfg.AccessTTL != 15*time.Minute {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.RefreshTTL != 7*24*time.Hour || cfg.LockThreshold != 5 {
		t.Fatalf("unexpected token defaults %+v", cfg)
	}

	engineCfg := cfg.engineConfig()
	if err := engineCfg.Validate(); err != nil {
		t.Fatalf("engine config from defaults must validate: %v", err)
	}
	if !engineCfg.Audit.Enabled || !engineCfg.Metrics.EnableLatencyHistograms {
		t.Fatalf("expected audit and histograms on, got %+v", engineCfg)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("BRANCHAUTH_ACCESS_TTL", "5m")
	t.Setenv("BRANCHAUTH_LOCKOUT_THRESHOLD", "3")
	t.Setenv("BRANCHAUTH_JWT_ALG", "HS512")
	t.Setenv("BRANCHAUTH_METRICS_ENABLED", "false")

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	engineCfg := cfg.engineConfig()
	if engineCfg.JWT.AccessTTL != 5*time.Minute || engineCfg.Lockout.Threshold != 3 {
		t.Fatalf("overrides not applied: %+v", engineCfg)
	}
	if engineCfg.Metrics.Enabled || engineCfg.Metrics.EnableLatencyHistograms {
		t.Fatalf("metrics should be off: %+v", engineCfg.Metrics)
	}
}

func TestLoadConfigRequiresSecretAndDSN(t *testing.T) {
	t.Setenv("BRANCHAUTH_PG_DSN", "postgres://auth@localhost/auth")
	t.Setenv("BRANCHAUTH_JWT_SECRET", "")

	if _, err := loadConfig(); err == nil {
		t.Fatal("expected empty secret to fail")
	}
}

type fakePinger struct {
	err error
}

func (f fakePinger) PingContext(context.Context) error { return f.err }

func (f fakePinger) Ping(context.Context) (time.Duration, error) { return time.Millisecond, f.err }

func TestHealthz(t *testing.T) {
	tests := []struct {
		name   string
		redis  error
		pg     error
		status int
	}{
		{"healthy", nil, nil, http.StatusOK},
		{"redis down", errors.New("dial tcp"), nil, http.StatusServiceUnavailable},
		{"postgres down", nil, errors.New("dial tcp"), http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			healthz(fakePinger{err: tt.redis}, fakePinger{err: tt.pg})(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	if parseLevel("DEBUG") != slog.LevelDebug || parseLevel("warning") != slog.LevelWarn || parseLevel("") != slog.LevelInfo {
		t.Fatal("unexpected level mapping")
	}
}
