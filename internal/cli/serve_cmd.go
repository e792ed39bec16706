package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"sqlgate/internal/app"
	"sqlgate/internal/config"
)

type serveFlags struct {
	configFile   string
	envFile      string
	listenAddr   string
	databaseURL  string
	queryTimeout time.Duration
	env          string
	logLevel     string
	staticDir    string
}

func newServeCmd() *cobra.Command {
	var f serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway",
		Long: `Run the HTTP gateway until SIGINT or SIGTERM.

Configuration is resolved as flag > environment > config file > default.
Environment variables: PORT, LISTEN_ADDR, DATABASE_URL (DB_PATH), QUERY_TIMEOUT_MS,
ENV (NODE_ENV), LOG_LEVEL, CORS_ALLOWED_ORIGINS, RATE_LIMIT_RPS, RATE_LIMIT_BURST,
MAX_BODY_BYTES, STATIC_DIR, CONFIG_FILE.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Flags(), f)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&f.configFile, "config", "", "YAML config file (overrides CONFIG_FILE)")
	cmd.Flags().StringVar(&f.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	cmd.Flags().StringVar(&f.listenAddr, "listen", "", "HTTP listen address, e.g. :4000")
	cmd.Flags().StringVar(&f.databaseURL, "database-url", "", "database connection string (path, sqlite://, duckdb://, postgres://)")
	cmd.Flags().DurationVar(&f.queryTimeout, "query-timeout", 0, "per-statement timeout, e.g. 30s")
	cmd.Flags().StringVar(&f.env, "env", "", "environment mode: development or production")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn, error")
	cmd.Flags().StringVar(&f.staticDir, "static-dir", "", "directory served for non-API paths")
	return cmd
}

// loadConfig resolves the configuration and applies explicitly set flags on
// top of it.
func loadConfig(flags *pflag.FlagSet, f serveFlags) (*config.Config, error) {
	if err := config.LoadDotEnv(f.envFile); err != nil {
		return nil, fmt.Errorf("load %s: %w", f.envFile, err)
	}

	path := os.Getenv("CONFIG_FILE")
	if flags.Changed("config") {
		path = f.configFile
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if flags.Changed("listen") {
		cfg.ListenAddr = f.listenAddr
	}
	if flags.Changed("database-url") {
		cfg.DatabaseURL = f.databaseURL
	}
	if flags.Changed("query-timeout") {
		cfg.QueryTimeout = f.queryTimeout
	}
	if flags.Changed("env") {
		cfg.Env = f.env
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if flags.Changed("static-dir") {
		cfg.StaticDir = f.staticDir
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func serve(parent context.Context, cfg *config.Config) (err error) {
	logger := newLogger(cfg)
	slog.SetDefault(logger)
	for _, w := range cfg.Warnings {
		logger.Warn(w)
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, app.Deps{Cfg: cfg, Logger: logger})
	if err != nil {
		return err
	}

	// A panic outside request handling still closes the connection (Serve
	// defers Close) and is reported as a fatal error.
	defer func() {
		if r := recover(); r != nil {
			logger.Error("fatal panic", "panic", r)
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	if err := a.Serve(ctx); err != nil {
		return err
	}
	logger.Info("stopped")
	return nil
}
