package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Store.Mode)
	assert.Equal(t, 5*time.Second, cfg.LoadTest.MinWait)
	assert.Equal(t, 9*time.Second, cfg.LoadTest.MaxWait)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
server:
  port: 9001
loadtest:
  host: https://addons.example.com
  users: 50
  duration: 2m
identity:
  env: prod
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9001, cfg.Server.Port)
	assert.Equal(t, "https://addons.example.com", cfg.LoadTest.Host)
	assert.Equal(t, 50, cfg.LoadTest.Users)
	assert.Equal(t, 2*time.Minute, cfg.LoadTest.Duration)
	assert.Equal(t, "prod", cfg.Identity.Env)
	// untouched sections keep defaults
	assert.Equal(t, 200, cfg.Server.RateBurst)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("MARKETPLACE_PORT", "8123")
	t.Setenv("STORE_MODE", "postgres")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("FXA_ENV", "dev")
	t.Setenv("LOADTEST_HOST", "http://site.test")

	cfg := Default()
	LoadFromEnv(cfg)

	assert.Equal(t, 8123, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Store.Mode)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, "dev", cfg.Identity.Env)
	assert.Equal(t, "http://site.test", cfg.LoadTest.Host)
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("MARKETPLACE_DOTENV_PROBE=yes\n"), 0o600))
	t.Setenv("MARKETPLACE_DOTENV_PROBE", "")
	require.NoError(t, os.Unsetenv("MARKETPLACE_DOTENV_PROBE"))

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "yes", os.Getenv("MARKETPLACE_DOTENV_PROBE"))

	// missing files are not an error
	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")))
}

func TestGetEnvOrDefault(t *testing.T) {
	t.Setenv("MARKETPLACE_TEST_KEY", "")
	assert.Equal(t, "fallback", GetEnvOrDefault("MARKETPLACE_TEST_KEY", "fallback"))
	t.Setenv("MARKETPLACE_TEST_KEY", "set")
	assert.Equal(t, "set", GetEnvOrDefault("MARKETPLACE_TEST_KEY", "fallback"))
}
