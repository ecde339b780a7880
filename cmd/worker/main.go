/**
 * Detection worker - distributed queue consumer entry point.
 *
 * Drains detection jobs from a Redis-backed queue via Asynq. Any number of
 * these processes can run side by side; task state is mirrored to a shared
 * store so the API tier can serve status from any instance.
 */

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/aerovision/detect-worker/internal/config"
	"github.com/aerovision/detect-worker/internal/logging"
	"github.com/aerovision/detect-worker/internal/model"
	"github.com/aerovision/detect-worker/internal/pipeline"
	"github.com/aerovision/detect-worker/internal/queue"
	"github.com/aerovision/detect-worker/internal/raster"
	"github.com/aerovision/detect-worker/internal/storage"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env not found, using system environment variables")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Detection queue worker starting...")
	log.Printf("Configuration loaded: Redis=%s, queue=%s, concurrency=%d",
		cfg.RedisURL, cfg.QueueName, cfg.QueueConcurrency)

	if cfg.RedisURL == "" {
		log.Fatalf("REDIS_URL is required for the queue worker")
	}
	if cfg.DetectorURL == "" {
		log.Fatalf("DETECTOR_URL is required")
	}

	store, err := buildTaskStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize task store: %v", err)
	}
	defer store.Close()
	log.Printf("Task store initialized (%s)", cfg.TaskStore)

	var screener model.Screener
	if cfg.ScreenerURL != "" {
		log.Printf("Using remote screener at %s", cfg.ScreenerURL)
		screener = model.NewRemoteScreener(cfg.ScreenerURL)
	} else {
		log.Printf("No SCREENER_URL configured, using built-in edge screener")
		screener = &model.EdgeScreener{}
	}

	pipe := pipeline.New(
		screener,
		model.NewRemoteDetector(cfg.DetectorURL),
		pipeline.Options{
			ScreenTileSize: cfg.ScreenTileSize,
			DetectTileSize: cfg.DetectTileSize,
			ScreenWorkers:  cfg.ScreenWorkers,
			WidenPolicy:    raster.WidenPolicy(cfg.ScreenWidenPolicy),
		},
		logging.NewLogger("pipeline"),
	)

	consumer, err := queue.NewConsumer(&queue.ConsumerConfig{
		RedisURL:          cfg.RedisURL,
		QueueName:         cfg.QueueName,
		Concurrency:       cfg.QueueConcurrency,
		ProcessingTimeout: cfg.ProcessingTimeout,
	}, pipe, store)
	if err != nil {
		log.Fatalf("Failed to initialize queue consumer: %v", err)
	}
	log.Printf("Queue consumer initialized with concurrency=%d", cfg.QueueConcurrency)

	ctx := context.Background()
	if err := consumer.Start(ctx); err != nil {
		log.Fatalf("Failed to start queue consumer: %v", err)
	}

	log.Printf("===========================================")
	log.Printf("Detection queue worker is READY")
	log.Printf("===========================================")
	log.Printf("Queue: %s", cfg.QueueName)
	log.Printf("Concurrency: %d", cfg.QueueConcurrency)
	log.Printf("Screen tiles: %dpx, detect tiles: %dpx", cfg.ScreenTileSize, cfg.DetectTileSize)
	log.Printf("===========================================")
	log.Printf("Waiting for jobs...")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigChan
	log.Printf("Received signal %v, initiating graceful shutdown...", sig)

	if err := consumer.Stop(ctx); err != nil {
		log.Printf("Error stopping queue consumer: %v", err)
	} else {
		log.Printf("Queue consumer stopped successfully")
	}

	log.Printf("Shutdown complete")
}

// buildTaskStore selects the task persistence backend.
func buildTaskStore(cfg *config.Config) (storage.TaskStore, error) {
	switch cfg.TaskStore {
	case "postgres":
		return storage.NewPostgresTaskStore(cfg.DatabaseURL)
	case "redis":
		return storage.NewRedisTaskStore(cfg.RedisURL, cfg.TaskRetention)
	default:
		return storage.NewMemoryTaskStore(), nil
	}
}
