package config

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnvDefaults(t *testing.T) {
	t.Setenv("OPSDECK_API_KEY", "secret")
	env, err := LoadEnv()
	require.NoError(t, err)
	assert.Equal(t, "local", env.StorageEnv.Type)
	assert.Equal(t, "3200", env.HTTPPort)
	assert.Equal(t, "5 0 * * *", env.PromoteCron)
	assert.Equal(t, []string{"*"}, env.AllowedOrigins)
	assert.Equal(t, slog.LevelDebug, env.SlogLevel())
}

func TestLoadEnvRequiresAPIKey(t *testing.T) {
	t.Setenv("OPSDECK_API_KEY", "")
	_, err := LoadEnv()
	assert.Error(t, err)
}

func TestLoadEnvStorageSettings(t *testing.T) {
	t.Setenv("OPSDECK_API_KEY", "secret")
	t.Setenv("OPSDECK_STORAGE_TYPE", "postgres")
	_, err := LoadEnv()
	assert.ErrorContains(t, err, "POSTGRES_DSN")

	t.Setenv("OPSDECK_POSTGRES_DSN", "postgres://localhost/opsdeck")
	env, err := LoadEnv()
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/opsdeck", env.PostgresDSN)

	t.Setenv("OPSDECK_STORAGE_TYPE", "floppy")
	_, err = LoadEnv()
	assert.Error(t, err)
}

func TestLoadEnvTimeZone(t *testing.T) {
	t.Setenv("OPSDECK_API_KEY", "secret")
	t.Setenv("OPSDECK_TIME_ZONE", "Mars/Olympus")
	_, err := LoadEnv()
	assert.ErrorContains(t, err, "TIME_ZONE")

	t.Setenv("OPSDECK_LOG_LEVEL", "warn")
	t.Setenv("OPSDECK_TIME_ZONE", "UTC")
	env, err := LoadEnv()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, env.SlogLevel())
}
