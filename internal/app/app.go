// Package app provides application-level wiring: it builds the database
// gateway, the statement builder, the record service and the HTTP router from
// a loaded configuration.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"sqlgate/internal/api"
	"sqlgate/internal/config"
	"sqlgate/internal/db"
	"sqlgate/internal/gateway"
	"sqlgate/internal/middleware"
	"sqlgate/internal/service/records"
	"sqlgate/internal/statement"
)

// Deps holds the external dependencies that main() must provide.
type Deps struct {
	Cfg    *config.Config
	Logger *slog.Logger
}

// App holds the fully-wired application.
type App struct {
	Gateway *gateway.Gateway
	Records *records.Service
	Handler http.Handler
	Target  db.Target

	cfg    *config.Config
	logger *slog.Logger
}

// New wires the gateway, service and router. No database connection is made
// here; the gateway connects on first use. ctx bounds background work owned
// by the router.
func New(ctx context.Context, deps Deps) (*App, error) {
	cfg := deps.Cfg
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	target, err := db.ParseTarget(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("database url: %w", err)
	}

	gw := gateway.New(func(ctx context.Context) (*sql.DB, error) {
		return db.Open(ctx, target)
	}, cfg.QueryTimeout, logger.With("component", "gateway"))

	svc := records.NewService(statement.NewBuilder(target.Dialect), gw, cfg.QueryTimeout, logger.With("component", "records"))
	handler := api.NewHandler(svc, gw, !cfg.IsProduction(), logger.With("component", "api"))
	router := api.NewRouter(ctx, handler, api.RouterConfig{
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimit: middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimitRPS,
			Burst:             cfg.RateLimitBurst,
		},
		MaxBodyBytes: cfg.MaxBodyBytes,
		StaticDir:    cfg.StaticDir,
	}, logger.With("component", "http"))

	return &App{
		Gateway: gw,
		Records: svc,
		Handler: router,
		Target:  target,
		cfg:     cfg,
		logger:  logger,
	}, nil
}

// Serve connects to the database, then serves HTTP on the configured address
// until ctx is cancelled. On return the server is shut down and the database
// connection is closed.
func (a *App) Serve(ctx context.Context) (err error) {
	defer func() {
		if cerr := a.Gateway.Close(); cerr != nil {
			a.logger.Warn("close database", "error", cerr)
		}
	}()

	if err := a.Gateway.Connect(ctx); err != nil {
		return fmt.Errorf("connect %s: %w", a.Target.Redact(), err)
	}
	a.logger.Info("database connected", "driver", a.Target.Driver, "dsn", a.Target.Redact())

	srv := &http.Server{
		Addr:              a.cfg.ListenAddr,
		Handler:           a.Handler,
		ReadHeaderTimeout: api.ReadHeaderTimeout,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", "addr", a.cfg.ListenAddr, "env", a.cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}
