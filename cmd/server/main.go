/**
 * Detection worker - API server entry point.
 *
 * Single-process deployment: HTTP API, in-memory bounded task queue, worker
 * pool and archive retention all live in this process. For multi-instance
 * deployments run cmd/worker against a Redis-backed queue instead.
 */

package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/aerovision/detect-worker/internal/config"
	"github.com/aerovision/detect-worker/internal/logging"
	"github.com/aerovision/detect-worker/internal/model"
	"github.com/aerovision/detect-worker/internal/pipeline"
	"github.com/aerovision/detect-worker/internal/raster"
	"github.com/aerovision/detect-worker/internal/server"
	"github.com/aerovision/detect-worker/internal/storage"
	"github.com/aerovision/detect-worker/internal/task"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env not found, using system environment variables")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Detection API server starting...")
	log.Printf("Configuration loaded: addr=%s, store=%s, workers=%d, queueCapacity=%d",
		cfg.HTTPAddr, cfg.TaskStore, cfg.WorkerCount, cfg.QueueCapacity)

	if cfg.TokenSecret == "" {
		log.Fatalf("TOKEN_SECRET is required")
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

	archives, err := storage.NewArchiveStore(cfg.ArchiveDir)
	if err != nil {
		log.Fatalf("Failed to initialize archive store: %v", err)
	}

	signer, err := task.NewTokenSigner(cfg.TokenSecret, cfg.TokenTTL)
	if err != nil {
		log.Fatalf("Failed to initialize token signer: %v", err)
	}

	pipe := pipeline.New(
		buildScreener(cfg),
		model.NewRemoteDetector(cfg.DetectorURL),
		pipeline.Options{
			ScreenTileSize: cfg.ScreenTileSize,
			DetectTileSize: cfg.DetectTileSize,
			ScreenWorkers:  cfg.ScreenWorkers,
			WidenPolicy:    raster.WidenPolicy(cfg.ScreenWidenPolicy),
		},
		logging.NewLogger("pipeline"),
	)

	orch := task.New(pipe, store, archives, signer, task.Options{
		QueueCapacity:     cfg.QueueCapacity,
		WorkerCount:       cfg.WorkerCount,
		TaskRetention:     cfg.TaskRetention,
		ArchiveRetention:  cfg.ArchiveRetention,
		ProcessingTimeout: cfg.ProcessingTimeout,
	}, logging.NewLogger("orchestrator"))
	orch.Start()
	log.Printf("Orchestrator started: workers=%d, queueCapacity=%d, retention=%v",
		cfg.WorkerCount, cfg.QueueCapacity, cfg.TaskRetention)

	srv := server.New(server.Config{
		Addr:            cfg.HTTPAddr,
		UploadDir:       cfg.UploadDir,
		WorkDir:         cfg.WorkDir,
		ScreenThreshold: cfg.ScreenThreshold,
		DetectThreshold: cfg.DetectThreshold,
		DedupeIoU:       cfg.DedupeIoU,
	}, orch, signer, archives, logging.NewLogger("http"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("Detection API server is READY on %s", cfg.HTTPAddr)
	if err := srv.Start(ctx); err != nil {
		log.Fatalf("HTTP server error: %v", err)
	}

	log.Printf("Shutting down, waiting for in-flight tasks...")
	orch.Close()
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

// buildScreener prefers the remote trained screener, falling back to the
// built-in edge-density heuristic when none is configured.
func buildScreener(cfg *config.Config) model.Screener {
	if cfg.ScreenerURL != "" {
		log.Printf("Using remote screener at %s", cfg.ScreenerURL)
		return model.NewRemoteScreener(cfg.ScreenerURL)
	}
	log.Printf("No SCREENER_URL configured, using built-in edge screener")
	return &model.EdgeScreener{}
}
