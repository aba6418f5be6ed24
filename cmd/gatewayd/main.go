// Command gatewayd runs the MirrorOS public API gateway: the authenticated
// HTTP surface that validates, throttles, signs and forwards prediction
// requests to the private prediction service.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mirroros/gateway/pkg/api"
	"github.com/mirroros/gateway/pkg/auth"
	"github.com/mirroros/gateway/pkg/config"
	"github.com/mirroros/gateway/pkg/observability"
	"github.com/mirroros/gateway/pkg/proxy"
	"github.com/mirroros/gateway/pkg/quota"
	"github.com/mirroros/gateway/pkg/ratelimit"
	"github.com/mirroros/gateway/pkg/signing"
	"github.com/mirroros/gateway/pkg/usagelog"
	"github.com/mirroros/gateway/pkg/users"
)

func main() {
	cfg := config.Load()
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("gateway exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}

	if cfg.LimitsProfile != "" {
		profile, err := config.LoadLimitsProfile(cfg.LimitsProfile)
		if err != nil {
			return err
		}
		profile.Apply(cfg)
		logger.Info("limits profile applied", "path", cfg.LimitsProfile)
	}

	// Storage: Postgres when DATABASE_URL is set, local SQLite otherwise.
	var (
		db          *sql.DB
		quotaStore  quota.Store
		userStore   users.Store
		recordStore usagelog.Store
		err         error
	)
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return err
		}
		if userStore, err = users.NewPostgresStore(db); err != nil {
			return err
		}
		if recordStore, err = usagelog.NewPostgresStore(db); err != nil {
			return err
		}
		quotaStore = quota.NewPostgresStore(db)
		logger.Info("using postgres storage")
	} else {
		db, err = sql.Open("sqlite", cfg.SQLitePath)
		if err != nil {
			return err
		}
		if userStore, err = users.NewSQLiteStore(db); err != nil {
			return err
		}
		if recordStore, err = usagelog.NewSQLiteStore(db); err != nil {
			return err
		}
		quotaStore = quota.NewSQLiteStore(db)
		logger.Info("using sqlite storage", "path", cfg.SQLitePath)
	}
	defer db.Close()

	// Rate limiting: Redis-backed windows when configured, with the
	// process-local store as fallback either way.
	var primary ratelimit.WindowStore
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return err
		}
		client := redis.NewClient(redisOpts)
		defer client.Close()
		primary = ratelimit.NewRedisWindowStore(client)
		logger.Info("rate limiter using redis", "addr", redisOpts.Addr)
	} else {
		logger.Warn("REDIS_URL not set, rate limits are per-process")
	}
	limiter := ratelimit.NewLimiter(primary, ratelimit.NewMemoryWindowStore(), logger)

	// Upstream signing.
	var signer proxy.Signer
	if cfg.PrivateAPISecret != "" {
		s, err := signing.NewSigner(cfg.PrivateAPISecret)
		if err != nil {
			return err
		}
		signer = s
	} else {
		logger.Warn("PRIVATE_API_SECRET not set, upstream requests are unsigned")
	}
	if cfg.PrivateAPIURL == "" {
		logger.Warn("PRIVATE_API_URL not set, predictions will fail with configuration_error")
	}

	authn, err := auth.NewAuthenticator(cfg.JWTSecret, auth.DefaultTokenTTL)
	if err != nil {
		return err
	}

	obs, err := observability.New(ctx, &observability.Config{
		ServiceName:    "mirroros-gateway",
		ServiceVersion: "1.0.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTelEndpoint,
		Enabled:        cfg.OTelEnabled,
		Insecure:       cfg.OTelInsecure,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := obs.Shutdown(shutdownCtx); err != nil {
			logger.Warn("observability shutdown failed", "error", err)
		}
	}()

	orch := proxy.NewOrchestrator(
		proxy.NewUpstream(cfg.PrivateAPIURL, signer),
		quota.NewLedger(quotaStore),
		recordStore,
		logger,
	)

	server := api.NewServer(orch, limiter, authn, userStore, obs, logger, api.Options{
		CORSOrigins:                 cfg.CORSOrigins,
		ForgiveUpstreamClientErrors: cfg.ForgiveUpstreamClientErrors,
	})

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           obs.Middleware(server.Handler()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
