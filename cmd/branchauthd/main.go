// Command branchauthd serves the branchauth HTTP API.
//
// Configuration comes from BRANCHAUTH_* environment variables; see
// serverEnv. Credentials and login audit rows live in PostgreSQL, refresh
// records and the session blacklist in Redis.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MrEthical07/branchauth"
	"github.com/MrEthical07/branchauth/credential"
	"github.com/MrEthical07/branchauth/httpapi"
	"github.com/MrEthical07/branchauth/loginaudit"
	"github.com/MrEthical07/branchauth/metrics/export/prometheus"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
)

func main() {
	if err := run(); err != nil {
		slog.Error("branchauthd: exit", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("pgx", cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.PostgresMaxConn)
	db.SetMaxIdleConns(cfg.PostgresMaxConn)
	db.SetConnMaxLifetime(30 * time.Minute)

	creds := credential.NewPGStore(db)
	audit := loginaudit.NewPGStore(db)
	if cfg.EnsureSchema {
		if err := creds.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("credential schema: %w", err)
		}
		if err := audit.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("login audit schema: %w", err)
		}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()

	builder := branchauth.New().
		WithConfig(cfg.engineConfig()).
		WithRedis(rdb).
		WithCredentialStore(creds).
		WithLoginAuditStore(audit).
		WithLogger(logger)
	if cfg.AuditEnabled {
		builder = builder.WithAuditSink(branchauth.NewSlogSink(logger))
	}
	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	router := httpapi.NewRouter(engine, logger)
	router.Handle("/metrics", prometheus.NewPrometheusExporter(engine).Handler()).Methods(http.MethodGet)
	router.HandleFunc("/healthz", healthz(engine, db)).Methods(http.MethodGet)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("branchauthd: listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("branchauthd: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("branchauthd: stopped")
	return nil
}

type pinger interface {
	PingContext(ctx context.Context) error
}

type sessionPinger interface {
	Ping(ctx context.Context) (time.Duration, error)
}

func healthz(sessions sessionPinger, db pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]string{"redis": "ok", "postgres": "ok"}
		if rtt, err := sessions.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body["redis"] = "unavailable"
		} else {
			body["redis_rtt"] = rtt.String()
		}
		if err := db.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body["postgres"] = "unavailable"
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
