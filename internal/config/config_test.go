package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, ":5010", cfg.HTTPAddr)
	assert.Equal(t, "memory", cfg.TaskStore)
	assert.Equal(t, 10, cfg.QueueCapacity)
	assert.Equal(t, 2, cfg.WorkerCount)
	assert.Equal(t, 2*time.Hour, cfg.TaskRetention)
	assert.Equal(t, 4*time.Hour, cfg.ArchiveRetention)
	assert.Equal(t, 256, cfg.ScreenTileSize)
	assert.Equal(t, 1024, cfg.DetectTileSize)
	assert.Equal(t, 0.35, cfg.ScreenThreshold)
	assert.Equal(t, 0.5, cfg.DetectThreshold)
	assert.Equal(t, 0.7, cfg.DedupeIoU)
	assert.Equal(t, "cross", cfg.ScreenWidenPolicy)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("QUEUE_CAPACITY", "5")
	t.Setenv("SCREEN_WIDEN_POLICY", "cell")
	t.Setenv("TASK_RETENTION", "30m")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.QueueCapacity)
	assert.Equal(t, "cell", cfg.ScreenWidenPolicy)
	assert.Equal(t, 30*time.Minute, cfg.TaskRetention)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero queue capacity", func(c *Config) { c.QueueCapacity = 0 }},
		{"too many workers", func(c *Config) { c.WorkerCount = 64 }},
		{"detect smaller than screen", func(c *Config) { c.DetectTileSize = 128 }},
		{"threshold out of range", func(c *Config) { c.ScreenThreshold = 1.5 }},
		{"unknown widen policy", func(c *Config) { c.ScreenWidenPolicy = "diagonal" }},
		{"postgres without url", func(c *Config) { c.TaskStore = "postgres"; c.DatabaseURL = "" }},
		{"redis without url", func(c *Config) { c.TaskStore = "redis"; c.RedisURL = "" }},
		{"unknown store", func(c *Config) { c.TaskStore = "dynamo" }},
		{"zero screen workers", func(c *Config) { c.ScreenWorkers = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadConfig()
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
