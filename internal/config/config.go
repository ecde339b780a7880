/**
 * Configuration for the detection worker.
 *
 * Loads configuration from environment variables; .env is read by the cmd
 * entrypoints before this runs.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds worker configuration
type Config struct {
	// HTTP API
	HTTPAddr string

	// Task record persistence: memory, postgres or redis
	TaskStore   string
	DatabaseURL string
	RedisURL    string

	// Distributed queue (cmd/worker only)
	QueueName         string
	QueueConcurrency  int
	ProcessingTimeout time.Duration

	// Orchestrator
	QueueCapacity    int
	WorkerCount      int
	TaskRetention    time.Duration
	ArchiveRetention time.Duration

	// Download tokens
	TokenSecret string
	TokenTTL    time.Duration

	// Pipeline defaults
	ScreenTileSize   int
	DetectTileSize   int
	ScreenThreshold  float64
	DetectThreshold  float64
	DedupeIoU        float64
	ScreenWidenPolicy string
	ScreenWorkers    int

	// External model services. When ScreenerURL is empty the built-in
	// edge-density screener is used; DetectorURL has no built-in fallback.
	ScreenerURL string
	DetectorURL string

	// Directories
	UploadDir  string
	WorkDir    string
	ArchiveDir string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		HTTPAddr:          getEnvOrDefault("HTTP_ADDR", ":5010"),
		TaskStore:         getEnvOrDefault("TASK_STORE", "memory"),
		DatabaseURL:       getEnvOrDefault("DATABASE_URL", ""),
		RedisURL:          getEnvOrDefault("REDIS_URL", ""),
		QueueName:         getEnvOrDefault("QUEUE_NAME", "detect:jobs"),
		QueueConcurrency:  getEnvAsIntOrDefault("QUEUE_CONCURRENCY", 2),
		ProcessingTimeout: getEnvAsDurationOrDefault("PROCESSING_TIMEOUT", 30*time.Minute),
		QueueCapacity:     getEnvAsIntOrDefault("QUEUE_CAPACITY", 10),
		WorkerCount:       getEnvAsIntOrDefault("WORKER_COUNT", 2),
		TaskRetention:     getEnvAsDurationOrDefault("TASK_RETENTION", 2*time.Hour),
		ArchiveRetention:  getEnvAsDurationOrDefault("ARCHIVE_RETENTION", 4*time.Hour),
		TokenSecret:       getEnvOrDefault("TOKEN_SECRET", ""),
		TokenTTL:          getEnvAsDurationOrDefault("TOKEN_TTL", 2*time.Hour),
		ScreenTileSize:    getEnvAsIntOrDefault("SCREEN_TILE_SIZE", 256),
		DetectTileSize:    getEnvAsIntOrDefault("DETECT_TILE_SIZE", 1024),
		ScreenThreshold:   getEnvAsFloatOrDefault("SCREEN_THRESHOLD", 0.35),
		DetectThreshold:   getEnvAsFloatOrDefault("DETECT_THRESHOLD", 0.5),
		DedupeIoU:         getEnvAsFloatOrDefault("DEDUPE_IOU", 0.7),
		ScreenWidenPolicy: getEnvOrDefault("SCREEN_WIDEN_POLICY", "cross"),
		ScreenWorkers:     getEnvAsIntOrDefault("SCREEN_WORKERS", 4),
		ScreenerURL:       getEnvOrDefault("SCREENER_URL", ""),
		DetectorURL:       getEnvOrDefault("DETECTOR_URL", ""),
		UploadDir:         getEnvOrDefault("UPLOAD_DIR", "input"),
		WorkDir:           getEnvOrDefault("WORK_DIR", "run/work"),
		ArchiveDir:        getEnvOrDefault("ARCHIVE_DIR", "run/archives"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.QueueCapacity < 1 {
		return fmt.Errorf("QUEUE_CAPACITY must be at least 1, got %d", c.QueueCapacity)
	}

	if c.WorkerCount < 1 || c.WorkerCount > 32 {
		return fmt.Errorf("WORKER_COUNT must be between 1 and 32, got %d", c.WorkerCount)
	}

	if c.ScreenTileSize < 1 || c.DetectTileSize < 1 {
		return fmt.Errorf("tile sizes must be positive, got screen=%d detect=%d", c.ScreenTileSize, c.DetectTileSize)
	}

	if c.DetectTileSize < c.ScreenTileSize {
		return fmt.Errorf("DETECT_TILE_SIZE (%d) must not be smaller than SCREEN_TILE_SIZE (%d)", c.DetectTileSize, c.ScreenTileSize)
	}

	for name, v := range map[string]float64{
		"SCREEN_THRESHOLD": c.ScreenThreshold,
		"DETECT_THRESHOLD": c.DetectThreshold,
		"DEDUPE_IOU":       c.DedupeIoU,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be in [0,1], got %v", name, v)
		}
	}

	if c.ScreenWidenPolicy != "cross" && c.ScreenWidenPolicy != "cell" {
		return fmt.Errorf("SCREEN_WIDEN_POLICY must be cross or cell, got %q", c.ScreenWidenPolicy)
	}

	switch c.TaskStore {
	case "memory":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when TASK_STORE=postgres")
		}
	case "redis":
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when TASK_STORE=redis")
		}
	default:
		return fmt.Errorf("TASK_STORE must be memory, postgres or redis, got %q", c.TaskStore)
	}

	if c.ScreenWorkers < 1 {
		return fmt.Errorf("SCREEN_WORKERS must be at least 1, got %d", c.ScreenWorkers)
	}

	return nil
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsFloatOrDefault gets environment variable as float64 or returns default
func getEnvAsFloatOrDefault(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsDurationOrDefault gets environment variable as duration or returns default
func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}
