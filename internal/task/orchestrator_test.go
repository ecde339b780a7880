package task

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aerovision/detect-worker/internal/errors"
	"github.com/aerovision/detect-worker/internal/logging"
	"github.com/aerovision/detect-worker/internal/pipeline"
	"github.com/aerovision/detect-worker/internal/storage"
)

type runnerFunc func(ctx context.Context, job pipeline.Job, report func(string), cancelled func() bool) ([]pipeline.DetectionResult, error)

func (f runnerFunc) Run(ctx context.Context, job pipeline.Job, report func(string), cancelled func() bool) ([]pipeline.DetectionResult, error) {
	return f(ctx, job, report, cancelled)
}

// succeedRunner writes a token output file so packaging has something to zip.
func succeedRunner(ctx context.Context, job pipeline.Job, report func(string), cancelled func() bool) ([]pipeline.DetectionResult, error) {
	if err := os.MkdirAll(job.OutputDir, 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(job.OutputDir, "output.json"), []byte(`[]`), 0o644); err != nil {
		return nil, err
	}
	return []pipeline.DetectionResult{}, nil
}

func newTestOrchestrator(t *testing.T, runner Runner, opts Options) *Orchestrator {
	t.Helper()

	archives, err := storage.NewArchiveStore(t.TempDir())
	require.NoError(t, err)
	signer, err := NewTokenSigner("test-secret", time.Hour)
	require.NoError(t, err)

	if opts.QueueCapacity == 0 {
		opts.QueueCapacity = 10
	}
	if opts.WorkerCount == 0 {
		opts.WorkerCount = 2
	}
	if opts.TaskRetention == 0 {
		opts.TaskRetention = 2 * time.Hour
	}
	if opts.ArchiveRetention == 0 {
		opts.ArchiveRetention = 4 * time.Hour
	}

	o := New(runner, storage.NewMemoryTaskStore(), archives, signer, opts,
		logging.NewLoggerTo(io.Discard, "test"))
	o.Start()
	t.Cleanup(o.Close)
	return o
}

func waitForStatus(t *testing.T, o *Orchestrator, id string, want Status) Task {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		got, err := o.Status(id)
		if err == nil && got.Status == want {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	got, err := o.Status(id)
	t.Fatalf("task %s never reached %s (last: %+v, err: %v)", id, want, got, err)
	return Task{}
}

func tempJob(t *testing.T) pipeline.Job {
	t.Helper()
	return pipeline.Job{OutputDir: filepath.Join(t.TempDir(), "out")}
}

func TestOrchestratorCompletesTask(t *testing.T) {
	o := newTestOrchestrator(t, runnerFunc(succeedRunner), Options{})

	submitted, err := o.Submit(tempJob(t))
	require.NoError(t, err)
	require.NotEmpty(t, submitted.ID)
	assert.Equal(t, StatusQueued, submitted.Status)

	done := waitForStatus(t, o, submitted.ID, StatusCompleted)
	assert.Equal(t, 100, done.Progress)
	assert.Equal(t, submitted.ID+".zip", done.ArchiveName)
	require.NotEmpty(t, done.DownloadToken)

	taskID, archive, err := o.signer.Verify(done.DownloadToken)
	require.NoError(t, err)
	assert.Equal(t, submitted.ID, taskID)
	assert.Equal(t, done.ArchiveName, archive)

	_, err = o.archives.Path(archive)
	assert.NoError(t, err)
}

func TestOrchestratorQueueFull(t *testing.T) {
	started := make(chan struct{}, 8)
	release := make(chan struct{})
	blocking := runnerFunc(func(ctx context.Context, job pipeline.Job, report func(string), cancelled func() bool) ([]pipeline.DetectionResult, error) {
		started <- struct{}{}
		<-release
		return succeedRunner(ctx, job, report, cancelled)
	})
	defer close(release)

	o := newTestOrchestrator(t, blocking, Options{QueueCapacity: 2, WorkerCount: 1})

	// First task occupies the single worker.
	_, err := o.Submit(tempJob(t))
	require.NoError(t, err)
	<-started

	// Two more fill the queue.
	_, err = o.Submit(tempJob(t))
	require.NoError(t, err)
	_, err = o.Submit(tempJob(t))
	require.NoError(t, err)

	// The next submission fails immediately and creates no task.
	rejected, err := o.Submit(pipeline.Job{TaskID: "rejected", OutputDir: t.TempDir()})
	assert.True(t, errors.IsQueueFull(err))
	assert.Empty(t, rejected.ID)
	_, err = o.Status("rejected")
	assert.True(t, errors.IsTaskNotFound(err))
}

func TestOrchestratorCancelQueuedTask(t *testing.T) {
	started := make(chan string, 8)
	release := make(chan struct{})
	blocking := runnerFunc(func(ctx context.Context, job pipeline.Job, report func(string), cancelled func() bool) ([]pipeline.DetectionResult, error) {
		started <- job.TaskID
		<-release
		return succeedRunner(ctx, job, report, cancelled)
	})
	defer close(release)

	o := newTestOrchestrator(t, blocking, Options{QueueCapacity: 4, WorkerCount: 1})

	first, err := o.Submit(tempJob(t))
	require.NoError(t, err)
	require.Equal(t, first.ID, <-started)

	queued, err := o.Submit(tempJob(t))
	require.NoError(t, err)

	got, err := o.Cancel(queued.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
	assert.False(t, got.FinishedAt.IsZero())

	// The cancelled task must never start.
	select {
	case id := <-started:
		t.Fatalf("cancelled task %s was executed", id)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestOrchestratorCancelProcessingTask(t *testing.T) {
	entered := make(chan struct{})
	cooperating := runnerFunc(func(ctx context.Context, job pipeline.Job, report func(string), cancelled func() bool) ([]pipeline.DetectionResult, error) {
		report(pipeline.StageExtracting)
		close(entered)
		for !cancelled() {
			time.Sleep(2 * time.Millisecond)
		}
		return nil, pipeline.ErrCancelled
	})

	o := newTestOrchestrator(t, cooperating, Options{WorkerCount: 1})

	submitted, err := o.Submit(tempJob(t))
	require.NoError(t, err)
	<-entered

	got, err := o.Cancel(submitted.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, got.Status)

	done := waitForStatus(t, o, submitted.ID, StatusCancelled)
	assert.Empty(t, done.DownloadToken)
	assert.Empty(t, done.ArchiveName)
}

func TestOrchestratorCancelTerminalIsNoop(t *testing.T) {
	o := newTestOrchestrator(t, runnerFunc(succeedRunner), Options{})

	submitted, err := o.Submit(tempJob(t))
	require.NoError(t, err)
	waitForStatus(t, o, submitted.ID, StatusCompleted)

	got, err := o.Cancel(submitted.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
}

func TestOrchestratorFailedTask(t *testing.T) {
	failing := runnerFunc(func(context.Context, pipeline.Job, func(string), func() bool) ([]pipeline.DetectionResult, error) {
		return nil, fmt.Errorf("no rasters found in input")
	})

	o := newTestOrchestrator(t, failing, Options{})

	submitted, err := o.Submit(tempJob(t))
	require.NoError(t, err)

	done := waitForStatus(t, o, submitted.ID, StatusFailed)
	assert.Contains(t, done.Error, "no rasters found")
	assert.Empty(t, done.DownloadToken)
}

func TestOrchestratorStageProgress(t *testing.T) {
	reporting := runnerFunc(func(ctx context.Context, job pipeline.Job, report func(string), cancelled func() bool) ([]pipeline.DetectionResult, error) {
		report(pipeline.StageScreening)
		return succeedRunner(ctx, job, report, cancelled)
	})

	o := newTestOrchestrator(t, reporting, Options{})

	submitted, err := o.Submit(tempJob(t))
	require.NoError(t, err)

	done := waitForStatus(t, o, submitted.ID, StatusCompleted)
	assert.Equal(t, 100, done.Progress)
}

func TestOrchestratorStatusUnknownTask(t *testing.T) {
	o := newTestOrchestrator(t, runnerFunc(succeedRunner), Options{})
	_, err := o.Status("nope")
	assert.True(t, errors.IsTaskNotFound(err))
	_, err = o.Cancel("nope")
	assert.True(t, errors.IsTaskNotFound(err))
}

func TestOrchestratorSweepsExpiredTasks(t *testing.T) {
	o := newTestOrchestrator(t, runnerFunc(succeedRunner), Options{
		TaskRetention: time.Millisecond,
		SweepInterval: 10 * time.Millisecond,
	})

	submitted, err := o.Submit(tempJob(t))
	require.NoError(t, err)
	waitForStatus(t, o, submitted.ID, StatusCompleted)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := o.Status(submitted.ID); errors.IsTaskNotFound(err) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("completed task was never swept")
}
