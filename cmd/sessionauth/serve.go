// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/sessionauth/internal/auth"
	"github.com/holomush/sessionauth/internal/auth/postgres"
	"github.com/holomush/sessionauth/internal/config"
	"github.com/holomush/sessionauth/internal/observability"
	"github.com/holomush/sessionauth/internal/session"
	"github.com/holomush/sessionauth/internal/web"
)

const shutdownTimeout = 5 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return newServeCmd(nil)
}

func newServeCmd(deps *ServeDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the login HTTP endpoints",
		Long: `Connect to PostgreSQL and serve /login, /whoami and /logout, with
Prometheus metrics and health probes on the metrics address.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeWithDeps(cmd.Context(), cmd, deps)
		},
	}
}

// runServeWithDeps runs the HTTP host until a signal arrives, ctx ends or a
// listener fails. If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cmd *cobra.Command, deps *ServeDeps) error {
	deps = deps.withDefaults()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	setupLogging(cmd, cfg)
	logger := slog.Default()

	logger.Info("starting sessionauth",
		"http_addr", cfg.HTTP.Addr,
		"session_backend", cfg.Session.Backend,
		"token_format", cfg.Token.Format,
		"password_algorithm", cfg.Password.Algorithm,
	)

	pool, err := deps.PoolOpener(ctx, cfg.Database.DSN())
	if err != nil {
		return oops.With("database", cfg.Database.Server).Wrap(err)
	}
	defer pool.Close()
	logger.Info("connected to database")

	manager, err := newManager(cfg, pool, logger)
	if err != nil {
		return err
	}

	sessions, closeSessions, err := newSessionOpener(ctx, cfg, deps, logger)
	if err != nil {
		return err
	}
	defer closeSessions()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var webOpts []web.Option
	webOpts = append(webOpts, web.WithLogger(logger))

	var obsServer *observability.Server
	if cfg.Metrics.Addr != "" {
		obsServer = observability.NewServer(cfg.Metrics.Addr, pool.Ping,
			observability.WithRegistration(auth.RegisterMetrics),
			observability.WithLogger(logger),
		)
		obsErrCh, err := obsServer.Start()
		if err != nil {
			return err
		}
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability")
		webOpts = append(webOpts, web.WithObserver(obsServer.HTTPMetrics()))
	}
	defer stopObservability(obsServer, logger)

	handler, err := web.NewHandler(manager, sessions, webOpts...)
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	listener, err := net.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		return oops.Code("HTTP_LISTEN_FAILED").With("addr", cfg.HTTP.Addr).Wrap(err)
	}
	httpServer := &http.Server{
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if serveErr := httpServer.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errCh <- serveErr
		}
	}()

	sigCh, stopSignals := deps.Signals()
	defer stopSignals()

	cmd.Println("sessionauth listening on " + listener.Addr().String())
	logger.Info("sessionauth ready", "http_addr", listener.Addr().String())

	var serveErr error
	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		serveErr = oops.Code("HTTP_SERVE_FAILED").Wrap(err)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("error stopping HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
	return serveErr
}

// newManager assembles the credential, token and login layers.
func newManager(cfg config.Config, pool *pgxpool.Pool, logger *slog.Logger) (*auth.Manager, error) {
	hasher, err := auth.NewPasswordHasher(cfg.Password.Algorithm)
	if err != nil {
		return nil, err
	}
	creds, err := postgres.NewCredentialStore(postgres.NewPgxPool(pool),
		postgres.WithHasher(hasher),
		postgres.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	tokens, err := auth.NewTokenService(cfg.Secret, auth.WithTokenFormat(cfg.Token.Format))
	if err != nil {
		return nil, err
	}
	return auth.NewManager(creds, tokens,
		auth.WithSessionKey(cfg.Session.Key),
		auth.WithMaxAge(cfg.Session.MaxAge),
		auth.WithLogger(logger),
	)
}

// newSessionOpener builds the per-request session store factory for the
// configured backend. The returned func releases backend resources.
func newSessionOpener(ctx context.Context, cfg config.Config, deps *ServeDeps, logger *slog.Logger) (web.SessionOpener, func(), error) {
	codec, err := session.NewCodec(cfg.Cookie.Name, cfg.CookieSecret(), cookieOptions(cfg))
	if err != nil {
		return nil, nil, err
	}

	if cfg.Session.Backend != config.SessionBackendRedis {
		return func(w http.ResponseWriter, r *http.Request) auth.SessionStore {
			return codec.Open(w, r)
		}, func() {}, nil
	}

	client, err := deps.RedisOpener(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	closeClient := func() {
		if err := client.Close(); err != nil {
			logger.Warn("error closing redis client", "error", err)
		}
	}
	backend, err := session.NewRedisBackend(client, codec, cfg.Session.MaxAge,
		session.WithRedisPrefix(cfg.Redis.Prefix),
		session.WithRedisLogger(logger),
	)
	if err != nil {
		closeClient()
		return nil, nil, err
	}
	logger.Info("using redis session backend", "addr", cfg.Redis.Addr)
	return func(w http.ResponseWriter, r *http.Request) auth.SessionStore {
		return backend.Open(w, r)
	}, closeClient, nil
}

func cookieOptions(cfg config.Config) session.CookieOptions {
	return session.CookieOptions{
		Path:     cfg.Cookie.Path,
		Domain:   cfg.Cookie.Domain,
		Secure:   cfg.Cookie.Secure,
		SameSite: sameSite(cfg.Cookie.SameSite),
		MaxAge:   int(cfg.Session.MaxAge / time.Second),
	}
}

func sameSite(mode string) http.SameSite {
	switch mode {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

func stopObservability(s *observability.Server, logger *slog.Logger) {
	if s == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		logger.Warn("error stopping observability server", "error", err)
	}
}

// monitorServerErrors cancels ctx when a background server fails.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if ok && err != nil {
			slog.Error(serverName+" server failed", "error", err)
			cancel()
		}
	case <-ctx.Done():
	}
}
