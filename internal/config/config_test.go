package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadYAMLWithEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeConfig(t, `
server:
  port: "9000"
postgres:
  url: postgres://yaml
redis:
  addr: localhost:6379
  db: 2
cache:
  question_ttl: 5m
push:
  concurrency: 4
  store: sqlite
log:
  level: debug
`)
	t.Setenv("DATABASE_URL", "postgres://env")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("CORS_ORIGINS", "https://a.test, https://b.test")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "9000", cfg.Server.Port)
	require.Equal(t, "postgres://env", cfg.Postgres.URL)
	require.Equal(t, 2, cfg.Redis.DB)
	require.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	require.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.Server.CORSOrigins)
	require.Equal(t, 4, cfg.Push.Concurrency)
	require.Equal(t, StoreSQLite, cfg.SubscriptionStore())
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, 5*time.Minute, TTLDuration(cfg.Cache.QuestionTTL, time.Minute))
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, "8080", cfg.Server.Port)
	require.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	require.Equal(t, "json", cfg.Log.Format)
	require.Equal(t, StoreMemory, cfg.SubscriptionStore())
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("REDIS_ADDR=redis:6379\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("REDIS_ADDR") })

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "redis:6379", cfg.Redis.Addr)
	require.Equal(t, StoreRedis, cfg.SubscriptionStore())
}

func TestLoadRejectsBadYAML(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := Load(writeConfig(t, "server: [unterminated"))
	require.Error(t, err)
}

func TestTTLDuration(t *testing.T) {
	if got := TTLDuration("", time.Second); got != time.Second {
		t.Fatalf("empty: got %v", got)
	}
	if got := TTLDuration("soon", time.Second); got != time.Second {
		t.Fatalf("invalid: got %v", got)
	}
	if got := TTLDuration("90s", time.Second); got != 90*time.Second {
		t.Fatalf("valid: got %v", got)
	}
}
