// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/gatekeep/gatekeep/internal/auth"
	authcache "github.com/gatekeep/gatekeep/internal/auth/cache"
	authpg "github.com/gatekeep/gatekeep/internal/auth/postgres"
	"github.com/gatekeep/gatekeep/internal/config"
	"github.com/gatekeep/gatekeep/internal/httpapi"
	"github.com/gatekeep/gatekeep/internal/logging"
	"github.com/gatekeep/gatekeep/internal/observability"
	"github.com/gatekeep/gatekeep/internal/store"
)

// ObservabilityServer is the subset of the observability server used here.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

// ServeDeps allows tests to inject infrastructure dependencies.
// Nil fields fall back to the real implementations.
type ServeDeps struct {
	PoolFactory                func(ctx context.Context, dsn string) (*pgxpool.Pool, error)
	RedisFactory               func(ctx context.Context, opts authcache.Options) (*redis.Client, error)
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the authentication HTTP server",
		Long: `Start the HTTP server that handles registration, login, logout,
and protected-route session validation.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeWithDeps(cmd.Context(), cmd, nil)
		},
	}

	cmd.Flags().String("http-addr", "", "HTTP listen address")
	cmd.Flags().String("metrics-addr", "", "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String("log-format", "", "log format (json or text)")
	cmd.Flags().String("database-url", "", "PostgreSQL connection URL")
	cmd.Flags().String("redis-addr", "", "Redis address")
	cmd.Flags().String("redis-password", "", "Redis password")
	cmd.Flags().Int("redis-db", 0, "Redis database number")
	cmd.Flags().Bool("cookie-secure", false, "mark the session cookie HTTPS-only")
	cmd.Flags().Duration("sweep-interval", 0, "interval between expired-session sweeps")

	return cmd
}

// runServeWithDeps starts the service with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.PoolFactory == nil {
		deps.PoolFactory = func(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
			return store.Connect(ctx, dsn)
		}
	}
	if deps.RedisFactory == nil {
		deps.RedisFactory = authcache.Connect
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker)
		}
	}

	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return oops.With("operation", "load configuration").Wrap(err)
	}

	logging.SetDefault("gatekeep", version, cfg.Server.LogFormat)
	logger := slog.Default()

	slog.Info("starting gatekeep",
		"http_addr", cfg.Server.Addr,
		"log_format", cfg.Server.LogFormat,
	)

	pool, err := deps.PoolFactory(ctx, cfg.Database.URL)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").Wrap(err)
	}
	defer pool.Close()

	slog.Info("connected to database")

	redisClient, err := deps.RedisFactory(ctx, authcache.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return oops.Code("REDIS_CONNECT_FAILED").Wrap(err)
	}
	defer func() {
		if closeErr := redisClient.Close(); closeErr != nil {
			slog.Debug("error closing redis client", "error", closeErr)
		}
	}()

	slog.Info("connected to redis", "addr", cfg.Redis.Addr)

	sessionStore, err := auth.NewSessionStore(
		authpg.NewSessionRepository(pool),
		authcache.NewSessionCache(redisClient),
		logger,
	)
	if err != nil {
		return oops.With("operation", "build session store").Wrap(err)
	}

	svc, err := auth.NewService(
		authpg.NewUserRepository(pool),
		sessionStore,
		auth.NewArgon2idHasher(),
		logger,
	)
	if err != nil {
		return oops.With("operation", "build auth service").Wrap(err)
	}

	gate, err := httpapi.NewGate(cfg.ProtectedRoutes)
	if err != nil {
		return oops.With("operation", "compile protected routes").Wrap(err)
	}

	cookie := httpapi.DefaultCookieConfig()
	cookie.Secure = cfg.Session.CookieSecure

	apiServer, err := httpapi.NewServer(svc, sessionStore, gate, cookie, logger)
	if err != nil {
		return oops.With("operation", "build http server").Wrap(err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Lazily-expiring sessions still accumulate durable rows; the
	// janitor trims them in the background.
	go sessionStore.RunJanitor(ctx, cfg.Session.SweepInterval)

	// Start observability server if configured
	var obsServer ObservabilityServer
	if cfg.Server.MetricsAddr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Server.MetricsAddr, func() bool { return true })
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return oops.With("operation", "start observability server").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		slog.Info("observability server started", "addr", obsServer.Addr())
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		if serveErr := httpServer.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errChan <- serveErr
		}
	}()

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("Gatekeep started")
	slog.Info("gatekeep ready", "http_addr", cfg.Server.Addr)

	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
	case err := <-errChan:
		return oops.Code("HTTP_SERVER_FAILED").Wrap(err)
	case <-ctx.Done():
		slog.Info("context cancelled, shutting down")
	}

	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("error stopping http server", "error", err)
	}

	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			slog.Warn("error stopping observability server", "error", err)
		}
	}

	slog.Info("shutdown complete")
	return nil
}

// monitorServerErrors cancels the context when a background server
// fails, so one dead listener takes the whole process down cleanly.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
