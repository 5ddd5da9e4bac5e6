package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "dev", cfg.AppEnv)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 1000, cfg.ChunkSize)
	assert.Equal(t, 10*time.Second, cfg.InterChunkDelay)
	assert.Equal(t, "memory", cfg.StoreBackend)
	assert.Equal(t, 512, cfg.StoreCapacity)
	assert.Equal(t, 24*time.Hour, cfg.ResultTTL)
	assert.Equal(t, 15*time.Minute, cfg.HTTPWriteTimeout)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("PORT", "9090")
	t.Setenv("INTER_CHUNK_DELAY", "3s")
	t.Setenv("STORE_BACKEND", "redis")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProd())
	assert.False(t, cfg.IsDev())
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 3*time.Second, cfg.InterChunkDelay)
	assert.Equal(t, "redis", cfg.StoreBackend)
}

func TestGetAIBackoffConfig(t *testing.T) {
	cfg := Config{
		AppEnv:                   "prod",
		AIBackoffMaxElapsedTime:  2 * time.Minute,
		AIBackoffInitialInterval: 2 * time.Second,
		AIBackoffMaxInterval:     20 * time.Second,
		AIBackoffMultiplier:      1.5,
	}
	maxElapsed, initial, maxInterval, mult := cfg.GetAIBackoffConfig()
	assert.Equal(t, 2*time.Minute, maxElapsed)
	assert.Equal(t, 2*time.Second, initial)
	assert.Equal(t, 20*time.Second, maxInterval)
	assert.Equal(t, 1.5, mult)

	cfg.AppEnv = "test"
	maxElapsed, initial, _, _ = cfg.GetAIBackoffConfig()
	assert.Equal(t, 5*time.Second, maxElapsed)
	assert.Equal(t, 100*time.Millisecond, initial)
}
