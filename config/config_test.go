package config

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SESSION_SECRET", "s3cret")
	t.Setenv("PORT", "")
	t.Setenv("STORAGE", "")
	t.Setenv("FEED_PAGE_SIZE", "")
	t.Setenv("RECONCILE_INTERVAL", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "3333", cfg.Port)
	assert.Equal(t, "postgres", cfg.Storage)
	assert.Equal(t, 20, cfg.FeedPageSize)
	assert.Equal(t, time.Minute, cfg.ReconcileInterval)
	assert.Equal(t, "http://localhost:3333", cfg.MediaBaseURL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SESSION_SECRET", "s3cret")
	t.Setenv("STORAGE", "memory")
	t.Setenv("FEED_PAGE_SIZE", "5")
	t.Setenv("RECONCILE_INTERVAL", "30s")
	t.Setenv("SESSION_TTL", "not-a-duration")
	t.Setenv("DB_USERNAME", "app")
	t.Setenv("DB_HOST", "db")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Storage)
	assert.Equal(t, 5, cfg.FeedPageSize)
	assert.Equal(t, 30*time.Second, cfg.ReconcileInterval)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	assert.Contains(t, cfg.DatabaseURL(), "user=app")
	assert.Contains(t, cfg.DatabaseURL(), "host=db")
}

func TestValidate(t *testing.T) {
	valid := Config{SessionSecret: "x", Storage: "memory", FeedPageSize: 20, ReconcileInterval: time.Minute}
	require.NoError(t, valid.Validate())

	tests := map[string]func(c *Config){
		"missing secret":      func(c *Config) { c.SessionSecret = "" },
		"unknown storage":     func(c *Config) { c.Storage = "sqlite" },
		"zero page size":      func(c *Config) { c.FeedPageSize = 0 },
		"oversized page size": func(c *Config) { c.FeedPageSize = 101 },
		"no sweep interval":   func(c *Config) { c.ReconcileInterval = 0 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := valid
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
