package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"storefront/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsAndEnv(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("AUTH_JWT_SECRET", "test_jwt_secret")
	t.Setenv("CHECKOUT_TIMEOUT", "3s")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.App.Port)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, 15*time.Minute, cfg.Auth.AccessTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.RefreshTTL)
	assert.Equal(t, 3*time.Second, cfg.Checkout.Timeout)
	assert.Equal(t, "test_jwt_secret", cfg.Auth.JWTSecret)
	assert.True(t, cfg.Catalog.Seed)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	yaml := "store:\n  driver: sqlite\n  dsn: file:test.db\nauth:\n  jwt_secret: from-file\n  access_ttl: 5m\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "file:test.db", cfg.Store.DSN)
	assert.Equal(t, "from-file", cfg.Auth.JWTSecret)
	assert.Equal(t, 5*time.Minute, cfg.Auth.AccessTTL)
}

func TestLoad_Invalid(t *testing.T) {
	chdir(t, t.TempDir())

	_, err := config.Load()
	assert.ErrorContains(t, err, "auth.jwt_secret required")

	t.Setenv("AUTH_JWT_SECRET", "secret")
	t.Setenv("STORE_DRIVER", "cassandra")
	_, err = config.Load()
	assert.ErrorContains(t, err, "not supported")

	t.Setenv("STORE_DRIVER", "postgres")
	_, err = config.Load()
	assert.ErrorContains(t, err, "store.dsn required")
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
