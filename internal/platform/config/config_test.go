package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("TRACECORE_ADMIN_ACTOR", "admin")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "admin", cfg.AdminActor)
	assert.Equal(t, BackendMemory, cfg.Storage.Backend)
	assert.Equal(t, 5*time.Minute, cfg.Redis.StatusTTL)
	assert.Equal(t, 10000, cfg.Events.QueueCapacity)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.False(t, cfg.AllowCheckpointEdits)
	assert.Equal(t, 300, cfg.Limits.Requests)
	assert.Equal(t, time.Minute, cfg.Limits.Window)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("TRACECORE_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("TRACECORE_ALLOW_CHECKPOINT_EDITS", "true")
	t.Setenv("TRACECORE_EVENT_RETRY_BACKOFF", "250ms")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.AllowCheckpointEdits)
	assert.Equal(t, 250*time.Millisecond, cfg.Events.RetryBackoff)
}

func TestValidate(t *testing.T) {
	t.Run("postgres requires dsn", func(t *testing.T) {
		t.Setenv("TRACECORE_BACKEND", "postgres")
		_, err := FromEnv()
		require.Error(t, err)
	})

	t.Run("unknown backend", func(t *testing.T) {
		t.Setenv("TRACECORE_BACKEND", "sqlite")
		_, err := FromEnv()
		require.ErrorContains(t, err, "unknown backend")
	})

	t.Run("rate limit must be positive unless disabled", func(t *testing.T) {
		t.Setenv("TRACECORE_RATELIMIT_REQUESTS", "0")
		_, err := FromEnv()
		require.ErrorContains(t, err, "rate limit")

		t.Setenv("TRACECORE_RATELIMIT_DISABLED", "true")
		_, err = FromEnv()
		require.NoError(t, err)
	})
}
