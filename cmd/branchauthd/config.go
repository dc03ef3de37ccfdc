package main

import (
	"fmt"
	"time"

	"github.com/MrEthical07/branchauth"
	"github.com/caarlos0/env/v11"
)

// serverEnv holds raw env values for the daemon.
type serverEnv struct {
	HTTPAddr        string        `env:"BRANCHAUTH_HTTP_ADDR"         envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"BRANCHAUTH_SHUTDOWN_TIMEOUT"  envDefault:"10s"`
	LogLevel        string        `env:"BRANCHAUTH_LOG_LEVEL"         envDefault:"info"`

	PostgresDSN     string `env:"BRANCHAUTH_PG_DSN,required,notEmpty"`
	PostgresMaxConn int    `env:"BRANCHAUTH_PG_MAX_CONNS"      envDefault:"10"`
	EnsureSchema    bool   `env:"BRANCHAUTH_PG_ENSURE_SCHEMA"  envDefault:"true"`

	RedisAddr     string `env:"BRANCHAUTH_REDIS_ADDR"     envDefault:"localhost:6379"`
	RedisPassword string `env:"BRANCHAUTH_REDIS_PASSWORD"`
	RedisDB       int    `env:"BRANCHAUTH_REDIS_DB"       envDefault:"0"`
	RedisPrefix   string `env:"BRANCHAUTH_REDIS_PREFIX"   envDefault:"ba"`

	JWTSecret     string        `env:"BRANCHAUTH_JWT_SECRET,required,notEmpty,unset"`
	JWTAlgorithm  string        `env:"BRANCHAUTH_JWT_ALG"          envDefault:"hs256"`
	JWTIssuer     string        `env:"BRANCHAUTH_JWT_ISSUER"       envDefault:"branchauth"`
	JWTAudience   string        `env:"BRANCHAUTH_JWT_AUDIENCE"     envDefault:"branchauth-api"`
	JWTKeyID      string        `env:"BRANCHAUTH_JWT_KEY_ID"`
	AccessTTL     time.Duration `env:"BRANCHAUTH_ACCESS_TTL"       envDefault:"15m"`
	RefreshTTL    time.Duration `env:"BRANCHAUTH_REFRESH_TTL"      envDefault:"168h"`
	Leeway        time.Duration `env:"BRANCHAUTH_JWT_LEEWAY"       envDefault:"0s"`
	LockThreshold int           `env:"BRANCHAUTH_LOCKOUT_THRESHOLD" envDefault:"5"`

	BlacklistRetention time.Duration `env:"BRANCHAUTH_BLACKLIST_RETENTION"  envDefault:"168h"`
	BlacklistCacheSize int           `env:"BRANCHAUTH_BLACKLIST_CACHE_SIZE" envDefault:"4096"`

	AuditEnabled    bool `env:"BRANCHAUTH_AUDIT_ENABLED"     envDefault:"true"`
	AuditBufferSize int  `env:"BRANCHAUTH_AUDIT_BUFFER_SIZE" envDefault:"1024"`

	MetricsEnabled bool `env:"BRANCHAUTH_METRICS_ENABLED" envDefault:"true"`
}

func loadConfig() (serverEnv, error) {
	cfg, err := env.ParseAs[serverEnv]()
	if err != nil {
		return serverEnv{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// engineConfig overlays the env values on branchauth.DefaultConfig.
func (s serverEnv) engineConfig() branchauth.Config {
	cfg := branchauth.DefaultConfig()
	cfg.JWT.Secret = []byte(s.JWTSecret)
	cfg.JWT.SigningMethod = s.JWTAlgorithm
	cfg.JWT.Issuer = s.JWTIssuer
	cfg.JWT.Audience = s.JWTAudience
	cfg.JWT.KeyID = s.JWTKeyID
	cfg.JWT.AccessTTL = s.AccessTTL
	cfg.JWT.RefreshTTL = s.RefreshTTL
	cfg.JWT.Leeway = s.Leeway

	cfg.Session.RedisPrefix = s.RedisPrefix
	cfg.Session.BlacklistRetention = s.BlacklistRetention
	cfg.Session.BlacklistCacheSize = s.BlacklistCacheSize

	cfg.Lockout.Threshold = s.LockThreshold

	cfg.Audit.Enabled = s.AuditEnabled
	cfg.Audit.BufferSize = s.AuditBufferSize

	cfg.Metrics.Enabled = s.MetricsEnabled
	cfg.Metrics.EnableLatencyHistograms = s.MetricsEnabled
	return cfg
}
