package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRequiresRedis(t *testing.T) {
	t.Setenv("REDIS_URL", " ")
	_, err := Load()
	assert.EqualError(t, err, "REDIS_URL is required")
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("WORKER_ID", "w1")
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.LeaseTTL)
	assert.Equal(t, 100, cfg.DrainBatch)
	assert.Equal(t, 100, cfg.KarmaMax)
	assert.Equal(t, 75, cfg.KarmaDefault)
	assert.Equal(t, 10, cfg.KarmaDropPenalty)
	assert.Equal(t, 30*24*time.Hour, cfg.NotificationTTL)
	assert.Equal(t, ":9102", cfg.MetricsAddr)
	assert.Equal(t, "w1", cfg.WorkerID)
	assert.Equal(t, 5.0, cfg.ChatRatePerSec)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("LEASE_TTL_SEC", "10")
	t.Setenv("SWEEP_INTERVAL_SEC", "bogus")
	t.Setenv("DRAIN_BATCH", "-4")
	t.Setenv("KARMA_DROP_PENALTY", "25")
	t.Setenv("NOTIFICATION_TTL_DAYS", "7")
	t.Setenv("CHAT_RATE_PER_SEC", "0")
	t.Setenv("METRICS_ADDR", "off")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, cfg.LeaseTTL)
	assert.Equal(t, 15*time.Second, cfg.SweepInterval, "invalid values keep the default")
	assert.Equal(t, 100, cfg.DrainBatch)
	assert.Equal(t, 25, cfg.KarmaDropPenalty)
	assert.Equal(t, 7*24*time.Hour, cfg.NotificationTTL)
	assert.Zero(t, cfg.ChatRatePerSec)
	assert.Empty(t, cfg.MetricsAddr)
}

func TestLoadRejectsDefaultAboveMax(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("KARMA_MAX", "50")
	_, err := Load()
	assert.Error(t, err)
}
