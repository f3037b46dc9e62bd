package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/matchmaking")
	t.Setenv("GAME_SERVICE_TOKEN", "secret")
}

func TestFromEnv_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := FromEnv()
	require.NoError(t, err)

	mm := cfg.Matchmaking()
	assert.Equal(t, 9.0, mm.Decay.Initial)
	assert.Equal(t, 3.0, mm.Decay.Minimum)
	assert.Equal(t, 0.05, mm.Decay.RatePerSecond)
	assert.Equal(t, 2*time.Second, mm.PollInterval)
	assert.Equal(t, 120*time.Second, mm.Timeout)
	assert.Equal(t, 50, mm.BatchSize)
	assert.False(t, cfg.R2Enabled())
	assert.False(t, cfg.RedisEnabled())
}

func TestFromEnv_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("MM_INITIAL_THRESHOLD", "8.5")
	t.Setenv("MM_POLL_INTERVAL", "500ms")
	t.Setenv("MM_BATCH_SIZE", "10")
	t.Setenv("ALLOWED_ORIGINS", " https://a.example , https://b.example,")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, 8.5, cfg.InitialThreshold)
	assert.Equal(t, 500*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 10, cfg.BatchSize)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Origins())
}

func TestFromEnv_Invalid(t *testing.T) {
	testCases := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing database", env: map[string]string{"DATABASE_URL": ""}},
		{name: "missing token", env: map[string]string{"GAME_SERVICE_TOKEN": ""}},
		{name: "minimum above initial", env: map[string]string{"MM_MINIMUM_THRESHOLD": "9.5"}},
		{name: "empty batch", env: map[string]string{"MM_BATCH_SIZE": "0"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}

func TestR2Enabled(t *testing.T) {
	cfg := Default()
	cfg.CloudflareAccountID = "acc"
	cfg.R2AccessKeyID = "id"
	cfg.R2AccessKeySecret = "secret"
	assert.False(t, cfg.R2Enabled())
	cfg.R2BucketName = "bucket"
	assert.True(t, cfg.R2Enabled())
}
