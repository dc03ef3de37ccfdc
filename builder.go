package branchauth

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	internalaudit "github.com/MrEthical07/branchauth/internal/audit"
	"github.com/MrEthical07/branchauth/internal/limiters"
	"github.com/MrEthical07/branchauth/jwt"
	"github.com/MrEthical07/branchauth/loginaudit"
	"github.com/MrEthical07/branchauth/password"
	"github.com/MrEthical07/branchauth/refresh"
	"github.com/MrEthical07/branchauth/session"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine] from configuration and backing stores.
//
// Builder instances are single-use: configure, call Build once, discard.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	credentials CredentialStore
	loginAudit  loginaudit.Store
	auditSink   AuditSink
	logger      *slog.Logger
	clock       func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client backing refresh records and the blacklist.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithCredentialStore sets the credential read/write boundary. Required.
func (b *Builder) WithCredentialStore(store CredentialStore) *Builder {
	b.credentials = store
	return b
}

// WithLoginAuditStore sets where login attempts are recorded. Without one,
// attempts are only visible through the audit sink.
func (b *Builder) WithLoginAuditStore(store loginaudit.Store) *Builder {
	b.loginAudit = store
	return b
}

// WithAuditSink sets the security event sink and enables the dispatcher.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	if sink != nil {
		b.config.Audit.Enabled = true
	}
	return b
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock replaces time.Now. Every engine component reads time through it.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	if !enabled {
		b.config.Metrics.EnableLatencyHistograms = false
	}
	return b
}

// WithLatencyHistograms toggles latency histograms.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.credentials == nil {
		return nil, errors.New("credential store required")
	}

	cfg := cloneConfig(b.config)
	cfg.JWT.SigningMethod = strings.ToLower(cfg.JWT.SigningMethod)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := b.clock
	if clock == nil {
		clock = time.Now
	}

	engine := &Engine{
		config:      cfg,
		logger:      logger,
		clock:       clock,
		credentials: b.credentials,
		loginAudit:  b.loginAudit,
		metrics:     NewMetrics(cfg.Metrics),
	}

	// -------- CREDENTIAL VERIFIER --------
	ph, err := password.NewArgon2(password.Config{
		Memory:           cfg.Password.Memory,
		Time:             cfg.Password.Time,
		Parallelism:      cfg.Password.Parallelism,
		SaltLength:       cfg.Password.SaltLength,
		KeyLength:        cfg.Password.KeyLength,
		MaxPasswordBytes: cfg.Password.MaxPasswordBytes,
	})
	if err != nil {
		return nil, err
	}
	engine.passwordHash = ph

	// -------- TOKEN CODEC --------
	jm, err := jwt.NewManager(jwt.Config{
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		Secret:        cloneBytes(cfg.JWT.Secret),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
		Now:           clock,
	})
	if err != nil {
		return nil, err
	}
	engine.jwtManager = jm

	// -------- SESSION STORE --------
	engine.sessionStore = session.NewRedisStore(b.redis, cfg.Session.RedisPrefix)

	var cache *session.BlacklistCache
	if cfg.Session.BlacklistCacheSize > 0 {
		cache, err = session.NewBlacklistCache(cfg.Session.BlacklistCacheSize)
		if err != nil {
			return nil, err
		}
	}

	// -------- TOKEN ISSUER --------
	issuer, err := refresh.NewIssuer(jm, engine.sessionStore, refresh.Config{
		AccessTTL:          cfg.JWT.AccessTTL,
		RefreshTTL:         cfg.JWT.RefreshTTL,
		BlacklistRetention: cfg.Session.BlacklistRetention,
		Now:                clock,
		Logger:             logger,
		Cache:              cache,
		Resolver:           engine.resolveSubject,
	})
	if err != nil {
		return nil, err
	}
	engine.issuer = issuer

	engine.lockout = limiters.NewLockoutLimiter(b.credentials, limiters.LockoutConfig{
		Threshold: cfg.Lockout.Threshold,
	})
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)

	b.built = true

	return engine, nil
}
