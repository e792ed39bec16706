package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable the loader reads so host settings cannot leak
// into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PORT", "LISTEN_ADDR", "DATABASE_URL", "DB_PATH", "QUERY_TIMEOUT_MS", "query_TIMEOUT",
		"ENV", "NODE_ENV", "LOG_LEVEL", "STATIC_DIR", "MAX_BODY_BYTES",
		"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "CORS_ALLOWED_ORIGINS", "CONFIG_FILE",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":4000", cfg.ListenAddr)
	assert.Equal(t, "database/database.db", cfg.DatabaseURL)
	assert.Equal(t, 180*time.Second, cfg.QueryTimeout)
	assert.Equal(t, "development", cfg.Env)
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
	assert.Equal(t, int64(1<<20), cfg.MaxBodyBytes)
	assert.InDelta(t, 100.0, cfg.RateLimitRPS, 0.001)
	assert.Equal(t, 200, cfg.RateLimitBurst)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.Len(t, cfg.Warnings, 1, "wildcard CORS in development warns")
}

func TestLoadFromEnv_AllVarsSet(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "8080")
	t.Setenv("DATABASE_URL", "postgres://app:secret@db:5432/app")
	t.Setenv("QUERY_TIMEOUT_MS", "2500")
	t.Setenv("ENV", "production")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("STATIC_DIR", "public")
	t.Setenv("MAX_BODY_BYTES", "4096")
	t.Setenv("RATE_LIMIT_RPS", "5.5")
	t.Setenv("RATE_LIMIT_BURST", "11")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example,")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "postgres://app:secret@db:5432/app", cfg.DatabaseURL)
	assert.Equal(t, 2500*time.Millisecond, cfg.QueryTimeout)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
	assert.Equal(t, "public", cfg.StaticDir)
	assert.Equal(t, int64(4096), cfg.MaxBodyBytes)
	assert.InDelta(t, 5.5, cfg.RateLimitRPS, 0.001)
	assert.Equal(t, 11, cfg.RateLimitBurst)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	assert.Empty(t, cfg.Warnings)
}

func TestLoadFromEnv_LegacyAliases(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_PATH", "data/legacy.db")
	t.Setenv("query_TIMEOUT", "1000")
	t.Setenv("NODE_ENV", "development")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "data/legacy.db", cfg.DatabaseURL)
	assert.Equal(t, time.Second, cfg.QueryTimeout)

	t.Setenv("DATABASE_URL", "data/primary.db")
	cfg, err = LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "data/primary.db", cfg.DatabaseURL, "DATABASE_URL wins over DB_PATH")
}

func TestLoadFromEnv_ListenAddrOverridesPort(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "8080")
	t.Setenv("LISTEN_ADDR", "127.0.0.1:9000")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.ListenAddr)
}

func TestLoadFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "timeout_not_a_number", env: map[string]string{"QUERY_TIMEOUT_MS": "soon"}},
		{name: "timeout_zero", env: map[string]string{"QUERY_TIMEOUT_MS": "0"}},
		{name: "body_limit_not_a_number", env: map[string]string{"MAX_BODY_BYTES": "big"}},
		{name: "unknown_env", env: map[string]string{"ENV": "staging"}},
		{name: "production_wildcard_cors", env: map[string]string{"ENV": "production"}},
		{name: "production_explicit_wildcard", env: map[string]string{"ENV": "production", "CORS_ALLOWED_ORIGINS": "*"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadFromEnv()
			assert.Error(t, err)
		})
	}
}

func TestLoadFromEnv_InvalidRateLimitWarns(t *testing.T) {
	clearEnv(t)
	t.Setenv("RATE_LIMIT_RPS", "fast")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.InDelta(t, 100.0, cfg.RateLimitRPS, 0.001)
	require.Len(t, cfg.Warnings, 1)
	assert.Contains(t, cfg.Warnings[0], "RATE_LIMIT_RPS")
}

func TestLoad_FileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "sqlgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen_addr: ":5000"
database_url: "duckdb://:memory:"
query_timeout_ms: 750
log_level: warn
rate_limit_burst: 3
cors_allowed_origins:
  - https://app.example
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":5000", cfg.ListenAddr)
	assert.Equal(t, "duckdb://:memory:", cfg.DatabaseURL)
	assert.Equal(t, 750*time.Millisecond, cfg.QueryTimeout)
	assert.Equal(t, slog.LevelWarn, cfg.SlogLevel())
	assert.Equal(t, 3, cfg.RateLimitBurst)
	assert.Equal(t, []string{"https://app.example"}, cfg.CORSAllowedOrigins)

	t.Setenv("QUERY_TIMEOUT_MS", "100")
	t.Setenv("CONFIG_FILE", path)
	cfg, err = LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 100*time.Millisecond, cfg.QueryTimeout, "env overrides file")
	assert.Equal(t, ":5000", cfg.ListenAddr)
}

func TestLoad_FileErrors(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen_addr: [unterminated"), 0o600))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.level}
			assert.Equal(t, tt.want, cfg.SlogLevel())
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(`# comment
export PORT=9100
DB_PATH="data/dot.db"
LOG_LEVEL='error'
not a pair
`), 0o600))

	t.Setenv("LOG_LEVEL", "debug")
	require.NoError(t, LoadDotEnv(path))

	assert.Equal(t, "9100", os.Getenv("PORT"))
	assert.Equal(t, "data/dot.db", os.Getenv("DB_PATH"))
	assert.Equal(t, "debug", os.Getenv("LOG_LEVEL"), "existing variables are not overwritten")
}

func TestLoadDotEnv_MissingFile(t *testing.T) {
	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "nope.env")))
}
