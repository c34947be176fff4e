package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, ".config"))
	t.Setenv("TITAN_DATABASE_URL", "sqlite://"+filepath.Join(dir, "test.db"))
	return dir
}

func TestLoad(t *testing.T) {
	t.Run("Should apply defaults when no config file exists", func(t *testing.T) {
		dir := isolate(t)

		cfg, err := Load("")
		require.NoError(t, err)

		assert.Equal(t, "sqlite://"+filepath.Join(dir, "test.db"), cfg.DatabaseURL)
		assert.Equal(t, "info", cfg.LogLevel)
		assert.Equal(t, 10*time.Second, cfg.API.Timeout)
		assert.Equal(t, 15*time.Second, cfg.Connect.Timeout)
		assert.Equal(t, 4, cfg.Session.MaxOpenConns)
		assert.Equal(t, 25, cfg.Store.MaxOpenConns)
		assert.Equal(t, 5*time.Minute, cfg.Store.ConnMaxLifetime)
		assert.Equal(t, "@every 30s", cfg.Keepalive.Schedule)
	})

	t.Run("Should read values from YAML file", func(t *testing.T) {
		dir := isolate(t)
		path := filepath.Join(dir, "titan.yaml")
		content := []byte(`
log_level: debug
api:
  base_url: https://api.example.com
  timeout: 3s
session:
  max_open_conns: 8
  max_idle_conns: 1
keepalive:
  schedule: "*/5 * * * *"
`)
		require.NoError(t, os.WriteFile(path, content, 0644))

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, "https://api.example.com", cfg.API.BaseURL)
		assert.Equal(t, 3*time.Second, cfg.API.Timeout)
		assert.Equal(t, 8, cfg.Session.MaxOpenConns)
		assert.Equal(t, 1, cfg.Session.MaxIdleConns)
		assert.Equal(t, "*/5 * * * *", cfg.Keepalive.Schedule)
	})

	t.Run("Should let environment override file values", func(t *testing.T) {
		dir := isolate(t)
		path := filepath.Join(dir, "titan.yaml")
		require.NoError(t, os.WriteFile(path, []byte("log_level: debug\n"), 0644))
		t.Setenv("TITAN_LOG_LEVEL", "warn")
		t.Setenv("TITAN_API_TIMEOUT", "2s")

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, "warn", cfg.LogLevel)
		assert.Equal(t, 2*time.Second, cfg.API.Timeout)
	})

	t.Run("Should fail when explicit file is missing", func(t *testing.T) {
		dir := isolate(t)

		_, err := Load(filepath.Join(dir, "missing.yaml"))
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "error reading config file")
	})

	t.Run("Should reject invalid log level", func(t *testing.T) {
		isolate(t)
		t.Setenv("TITAN_LOG_LEVEL", "verbose")

		_, err := Load("")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "log_level")
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			LogLevel: "info",
			API:      APIConfig{Timeout: time.Second},
			Connect:  ConnectConfig{Timeout: time.Second},
			Session:  PoolConfig{MaxOpenConns: 2, MaxIdleConns: 1},
			Store:    PoolConfig{MaxOpenConns: 2, MaxIdleConns: 1},
		}
	}

	t.Run("Should accept valid config", func(t *testing.T) {
		assert.NoError(t, Validate(valid()))
	})

	t.Run("Should reject non-positive timeouts", func(t *testing.T) {
		cfg := valid()
		cfg.API.Timeout = 0
		assert.ErrorContains(t, Validate(cfg), "api.timeout")

		cfg = valid()
		cfg.Connect.Timeout = -time.Second
		assert.ErrorContains(t, Validate(cfg), "connect.timeout")
	})

	t.Run("Should reject bad pool limits", func(t *testing.T) {
		cfg := valid()
		cfg.Session.MaxOpenConns = 0
		assert.ErrorContains(t, Validate(cfg), "session.max_open_conns")

		cfg = valid()
		cfg.Store.MaxIdleConns = 10
		assert.ErrorContains(t, Validate(cfg), "store.max_idle_conns")
	})
}
