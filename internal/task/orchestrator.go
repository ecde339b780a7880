/**
 * Task orchestrator.
 *
 * Owns the bounded queue, the worker pool and the authoritative in-memory
 * task table. Task state is mirrored to a TaskStore best-effort: a store
 * failure is logged, never propagated, so persistence problems cannot fail
 * a running task.
 */

package task

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aerovision/detect-worker/internal/errors"
	"github.com/aerovision/detect-worker/internal/logging"
	"github.com/aerovision/detect-worker/internal/pipeline"
	"github.com/aerovision/detect-worker/internal/storage"
)

// Runner executes one detection job. Satisfied by *pipeline.Pipeline.
type Runner interface {
	Run(ctx context.Context, job pipeline.Job, report func(stage string), cancelled func() bool) ([]pipeline.DetectionResult, error)
}

// Options configure the orchestrator.
type Options struct {
	QueueCapacity     int
	WorkerCount       int
	TaskRetention     time.Duration
	ArchiveRetention  time.Duration
	ProcessingTimeout time.Duration

	// SweepInterval is how often the janitor runs. Zero means one minute.
	SweepInterval time.Duration
}

// Orchestrator accepts, runs and tracks detection tasks.
type Orchestrator struct {
	runner   Runner
	store    storage.TaskStore
	archives *storage.ArchiveStore
	signer   *TokenSigner
	log      *logging.Logger
	opts     Options

	queue *Queue

	mu           sync.Mutex
	tasks        map[string]*Task
	cancelWanted map[string]bool

	wg       sync.WaitGroup
	stop     chan struct{}
	stopOnce sync.Once
}

// New creates an orchestrator. Start must be called before Submit.
func New(runner Runner, store storage.TaskStore, archives *storage.ArchiveStore,
	signer *TokenSigner, opts Options, log *logging.Logger) *Orchestrator {
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = time.Minute
	}
	return &Orchestrator{
		runner:       runner,
		store:        store,
		archives:     archives,
		signer:       signer,
		log:          log,
		opts:         opts,
		queue:        NewQueue(opts.QueueCapacity),
		tasks:        make(map[string]*Task),
		cancelWanted: make(map[string]bool),
		stop:         make(chan struct{}),
	}
}

// Start launches the worker pool and the retention janitor.
func (o *Orchestrator) Start() {
	for i := 0; i < o.opts.WorkerCount; i++ {
		o.wg.Add(1)
		go o.worker(i)
	}
	o.wg.Add(1)
	go o.janitor()
	o.log.Info("orchestrator started",
		"workers", o.opts.WorkerCount, "queueCapacity", o.opts.QueueCapacity)
}

// Close stops accepting work, drains nothing (queued ids are still consumed
// by workers until the queue empties) and waits for in-flight tasks.
func (o *Orchestrator) Close() {
	o.stopOnce.Do(func() {
		close(o.stop)
		o.queue.Close()
	})
	o.wg.Wait()
}

// Submit registers a new task and enqueues it. Fails immediately with a
// queue-full error when the queue is at capacity; the task is not created.
func (o *Orchestrator) Submit(job pipeline.Job) (Task, error) {
	if job.TaskID == "" {
		job.TaskID = uuid.New().String()
	}

	t := &Task{
		ID:          job.TaskID,
		Status:      StatusQueued,
		SubmittedAt: time.Now(),
		Job:         job,
	}

	o.mu.Lock()
	o.tasks[t.ID] = t
	o.mu.Unlock()

	if err := o.queue.Enqueue(t.ID); err != nil {
		o.mu.Lock()
		delete(o.tasks, t.ID)
		o.mu.Unlock()
		return Task{}, err
	}

	snapshot := *t
	o.persist(&snapshot)
	o.log.Info("task queued", "task", t.ID, "queueDepth", o.queue.Len())
	return snapshot, nil
}

// Status returns a snapshot of the task.
func (o *Orchestrator) Status(id string) (Task, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	t, ok := o.tasks[id]
	if !ok {
		return Task{}, errors.NewTaskNotFoundError(id)
	}
	return *t, nil
}

// Cancel requests cancellation. A queued task is removed from the queue and
// finalized immediately; a processing task is flagged and stops at its next
// stage boundary. Cancelling a terminal task is a no-op.
func (o *Orchestrator) Cancel(id string) (Task, error) {
	o.mu.Lock()
	t, ok := o.tasks[id]
	if !ok {
		o.mu.Unlock()
		return Task{}, errors.NewTaskNotFoundError(id)
	}

	switch t.Status {
	case StatusQueued:
		o.queue.Remove(id)
		o.transitionLocked(t, StatusCancelled)
		snapshot := *t
		o.mu.Unlock()
		o.persist(&snapshot)
		o.log.Info("queued task cancelled", "task", id)
		return snapshot, nil

	case StatusProcessing:
		o.cancelWanted[id] = true
		snapshot := *t
		o.mu.Unlock()
		o.log.Info("cancellation requested for running task", "task", id)
		return snapshot, nil

	default:
		snapshot := *t
		o.mu.Unlock()
		return snapshot, nil
	}
}

// worker consumes queued task ids until the queue closes.
func (o *Orchestrator) worker(n int) {
	defer o.wg.Done()
	log := o.log.With("worker")

	for {
		id, ok := o.queue.Dequeue()
		if !ok {
			return
		}

		o.mu.Lock()
		t, exists := o.tasks[id]
		if !exists || t.Status != StatusQueued {
			// Cancelled (or swept) while waiting in the queue.
			o.mu.Unlock()
			continue
		}
		o.transitionLocked(t, StatusProcessing)
		job := t.Job
		snapshot := *t
		o.mu.Unlock()
		o.persist(&snapshot)

		log.Info("task started", "task", id, "worker", n)
		o.runTask(id, job)
	}
}

// runTask executes the pipeline for one task and finalizes its state.
func (o *Orchestrator) runTask(id string, job pipeline.Job) {
	ctx := context.Background()
	if o.opts.ProcessingTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.ProcessingTimeout)
		defer cancel()
	}

	report := func(stage string) { o.setStage(id, stage) }
	cancelled := func() bool {
		o.mu.Lock()
		defer o.mu.Unlock()
		return o.cancelWanted[id]
	}

	_, err := o.runner.Run(ctx, job, report, cancelled)

	switch {
	case stderrors.Is(err, pipeline.ErrCancelled):
		o.finalize(id, StatusCancelled, "")
		o.log.Info("task cancelled", "task", id)

	case err != nil:
		o.finalize(id, StatusFailed, err.Error())
		o.log.Error("task failed", "task", id, "error", err)

	default:
		o.completeTask(id, job)
	}

	o.mu.Lock()
	delete(o.cancelWanted, id)
	o.mu.Unlock()
}

// completeTask packages output and mints the download token.
func (o *Orchestrator) completeTask(id string, job pipeline.Job) {
	o.setStage(id, StagePackaging)

	archiveName, err := o.archives.Package(id, job.OutputDir)
	if err != nil {
		o.finalize(id, StatusFailed, err.Error())
		o.log.Error("failed to package task output", "task", id, "error", err)
		return
	}

	token, err := o.signer.Mint(id, archiveName)
	if err != nil {
		o.finalize(id, StatusFailed, err.Error())
		o.log.Error("failed to mint download token", "task", id, "error", err)
		return
	}

	o.mu.Lock()
	t, ok := o.tasks[id]
	if ok {
		t.ArchiveName = archiveName
		t.DownloadToken = token
		t.Progress = 100
		t.Stage = ""
		o.transitionLocked(t, StatusCompleted)
	}
	var snapshot Task
	if ok {
		snapshot = *t
	}
	o.mu.Unlock()

	if ok {
		o.persist(&snapshot)
		o.log.Info("task completed", "task", id, "archive", archiveName)
	}
}

// setStage updates the task's visible stage and progress.
func (o *Orchestrator) setStage(id, stage string) {
	o.mu.Lock()
	t, ok := o.tasks[id]
	if !ok {
		o.mu.Unlock()
		return
	}
	t.Stage = stage
	if pct, known := stageProgress[stage]; known {
		t.Progress = pct
	}
	snapshot := *t
	o.mu.Unlock()
	o.persist(&snapshot)
}

// finalize moves the task into a terminal state.
func (o *Orchestrator) finalize(id string, status Status, errMsg string) {
	o.mu.Lock()
	t, ok := o.tasks[id]
	if !ok {
		o.mu.Unlock()
		return
	}
	t.Error = errMsg
	o.transitionLocked(t, status)
	snapshot := *t
	o.mu.Unlock()
	o.persist(&snapshot)
}

// transitionLocked applies a state change, guarding against illegal edges.
// Callers hold o.mu.
func (o *Orchestrator) transitionLocked(t *Task, to Status) {
	if !isValidTransition(t.Status, to) {
		o.log.Warn("illegal task transition ignored",
			"task", t.ID, "from", t.Status, "to", to)
		return
	}
	t.Status = to
	if to.Terminal() {
		t.FinishedAt = time.Now()
	}
}

// persist mirrors a task snapshot to the store. Best-effort.
func (o *Orchestrator) persist(t *Task) {
	if o.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rec := &storage.TaskRecord{
		ID:          t.ID,
		Status:      string(t.Status),
		Stage:       t.Stage,
		Progress:    t.Progress,
		Error:       t.Error,
		ArchiveName: t.ArchiveName,
		SubmittedAt: t.SubmittedAt,
		UpdatedAt:   time.Now(),
	}
	if err := o.store.SaveTask(ctx, rec); err != nil {
		o.log.Warn("failed to persist task state", "task", t.ID, "error", err)
	}
}

// janitor sweeps expired terminal tasks and stale archives.
func (o *Orchestrator) janitor() {
	defer o.wg.Done()
	ticker := time.NewTicker(o.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.stop:
			return
		case <-ticker.C:
			o.sweepTasks()
			o.sweepArchives()
		}
	}
}

// sweepTasks drops terminal tasks whose retention window has passed.
func (o *Orchestrator) sweepTasks() {
	cutoff := time.Now().Add(-o.opts.TaskRetention)

	o.mu.Lock()
	var expired []string
	for id, t := range o.tasks {
		if t.Status.Terminal() && t.FinishedAt.Before(cutoff) {
			expired = append(expired, id)
			delete(o.tasks, id)
		}
	}
	o.mu.Unlock()

	for _, id := range expired {
		if o.store != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := o.store.DeleteTask(ctx, id); err != nil {
				o.log.Warn("failed to delete expired task record", "task", id, "error", err)
			}
			cancel()
		}
	}
	if len(expired) > 0 {
		o.log.Info("expired tasks swept", "count", len(expired))
	}
}

// sweepArchives removes archives past the archive retention window.
func (o *Orchestrator) sweepArchives() {
	if o.archives == nil {
		return
	}
	removed, err := o.archives.Sweep(o.opts.ArchiveRetention)
	if err != nil {
		o.log.Warn("archive sweep failed", "error", err)
		return
	}
	if removed > 0 {
		o.log.Info("stale archives swept", "count", removed)
	}
}
