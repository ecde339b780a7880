/**
 * Distributed queue consumer for the detection worker.
 *
 * Consumes detection jobs from a Redis-backed queue via Asynq. This is the
 * multi-instance deployment path: an API tier enqueues jobs with
 * EnqueueDetectJob and any number of cmd/worker processes drain them. The
 * single-process deployment uses the in-memory orchestrator instead.
 */

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/aerovision/detect-worker/internal/pipeline"
	"github.com/aerovision/detect-worker/internal/storage"
)

// TypeDetectJob is the asynq task type for detection jobs.
const TypeDetectJob = "detect:job"

// Runner executes one detection job. Satisfied by *pipeline.Pipeline.
type Runner interface {
	Run(ctx context.Context, job pipeline.Job, report func(stage string), cancelled func() bool) ([]pipeline.DetectionResult, error)
}

// ConsumerConfig holds consumer configuration.
type ConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	ProcessingTimeout time.Duration
}

// Consumer drains detection jobs from the distributed queue.
type Consumer struct {
	client *asynq.Client
	server *asynq.Server
	mux    *asynq.ServeMux
	runner Runner
	store  storage.TaskStore
	config *ConsumerConfig
}

// NewConsumer creates a consumer bound to the given runner and task store.
func NewConsumer(cfg *ConsumerConfig, runner Runner, store storage.TaskStore) (*Consumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}
	if runner == nil {
		return nil, fmt.Errorf("Runner is required")
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := asynq.NewClient(redisOpt)

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				cfg.QueueName: 10, // Priority 10 for main queue
				"default":     1,  // Priority 1 for fallback
			},
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				// Exponential backoff: 5s, 10s, 20s, capped at a minute.
				delay := time.Duration(5*(1<<uint(n))) * time.Second
				if delay > 60*time.Second {
					delay = 60 * time.Second
				}
				return delay
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Printf("Task processing error: type=%s, payload=%s, error=%v",
					task.Type(), string(task.Payload()), err)
			}),
		},
	)

	mux := asynq.NewServeMux()

	consumer := &Consumer{
		client: client,
		server: server,
		mux:    mux,
		runner: runner,
		store:  store,
		config: cfg,
	}

	mux.HandleFunc(TypeDetectJob, consumer.handleDetectJob)

	return consumer, nil
}

// EnqueueDetectJob submits a detection job to the distributed queue.
func (c *Consumer) EnqueueDetectJob(ctx context.Context, job pipeline.Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal detect job: %w", err)
	}
	_, err = c.client.EnqueueContext(ctx,
		asynq.NewTask(TypeDetectJob, payload),
		asynq.Queue(c.config.QueueName))
	if err != nil {
		return fmt.Errorf("failed to enqueue detect job: %w", err)
	}
	return nil
}

// Start starts the queue consumer.
func (c *Consumer) Start(ctx context.Context) error {
	log.Printf("Starting queue consumer (concurrency=%d, queue=%s)...",
		c.config.Concurrency, c.config.QueueName)

	go func() {
		if err := c.server.Run(c.mux); err != nil {
			log.Printf("Queue consumer error: %v", err)
		}
	}()

	return nil
}

// Stop stops the queue consumer gracefully.
func (c *Consumer) Stop(ctx context.Context) error {
	log.Printf("Stopping queue consumer...")

	c.server.Shutdown()

	if err := c.client.Close(); err != nil {
		return fmt.Errorf("failed to close client: %w", err)
	}

	log.Printf("Queue consumer stopped")
	return nil
}

// handleDetectJob runs the pipeline for one queued job.
func (c *Consumer) handleDetectJob(ctx context.Context, task *asynq.Task) error {
	startTime := time.Now()

	var job pipeline.Job
	if err := json.Unmarshal(task.Payload(), &job); err != nil {
		return fmt.Errorf("failed to unmarshal detect job: %w", err)
	}

	log.Printf("[Task %s] Processing detection job: input=%s output=%s",
		job.TaskID, job.InputDir, job.OutputDir)

	c.updateStatus(ctx, job.TaskID, "processing", "", 0, "")

	timeout := 30 * time.Minute
	if c.config.ProcessingTimeout > 0 {
		timeout = c.config.ProcessingTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	report := func(stage string) {
		c.updateStatus(ctx, job.TaskID, "processing", stage, 0, "")
	}

	_, err := c.runner.Run(runCtx, job, report, nil)
	duration := time.Since(startTime)

	if err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			log.Printf("[Task %s] Processing timed out after %v (timeout: %v)",
				job.TaskID, duration, timeout)
			c.updateStatus(ctx, job.TaskID, "failed", "", 100, "processing timeout")
			return fmt.Errorf("processing timeout: %w", err)
		}

		log.Printf("[Task %s] Processing failed after %v: %v", job.TaskID, duration, err)
		c.updateStatus(ctx, job.TaskID, "failed", "", 100, err.Error())
		return fmt.Errorf("detection job failed: %w", err)
	}

	log.Printf("[Task %s] Processing completed successfully in %v", job.TaskID, duration)
	c.updateStatus(ctx, job.TaskID, "completed", "", 100, "")
	return nil
}

// updateStatus mirrors task state to the store. Best-effort.
func (c *Consumer) updateStatus(ctx context.Context, taskID, status, stage string, progress int, errMsg string) {
	if c.store == nil || taskID == "" {
		return
	}
	rec := &storage.TaskRecord{
		ID:       taskID,
		Status:   status,
		Stage:    stage,
		Progress: progress,
		Error:    errMsg,
		// Only used when the store creates the row; upserts keep the
		// original submission time.
		SubmittedAt: time.Now(),
		UpdatedAt:   time.Now(),
	}
	if err := c.store.SaveTask(ctx, rec); err != nil {
		log.Printf("[Task %s] Warning: Failed to update status to %s: %v", taskID, status, err)
	}
}

// GetStatistics returns consumer statistics.
func (c *Consumer) GetStatistics() map[string]interface{} {
	return map[string]interface{}{
		"concurrency": c.config.Concurrency,
		"queue":       c.config.QueueName,
		"redisURL":    c.config.RedisURL,
	}
}
