/**
 * Task state persistence for the detection worker.
 *
 * The orchestrator keeps authoritative task state in memory; a TaskStore
 * mirrors it so that status survives restarts and can be served by other
 * instances. Store failures are never task-fatal.
 */

package storage

import (
	"context"
	"sync"
	"time"

	"github.com/aerovision/detect-worker/internal/errors"
)

// TaskRecord is the persisted view of a task.
type TaskRecord struct {
	ID          string    `json:"id"`
	Status      string    `json:"status"`
	Stage       string    `json:"stage,omitempty"`
	Progress    int       `json:"progress"`
	Error       string    `json:"error,omitempty"`
	ArchiveName string    `json:"archiveName,omitempty"`
	SubmittedAt time.Time `json:"submittedAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// terminal reports whether the record's status is final.
func (r *TaskRecord) terminal() bool {
	switch r.Status {
	case "completed", "failed", "cancelled":
		return true
	}
	return false
}

// TaskStore persists task records.
type TaskStore interface {
	SaveTask(ctx context.Context, rec *TaskRecord) error
	GetTask(ctx context.Context, id string) (*TaskRecord, error)
	DeleteTask(ctx context.Context, id string) error
	Close() error
}

// MemoryTaskStore is the default single-instance store.
type MemoryTaskStore struct {
	mu    sync.RWMutex
	tasks map[string]TaskRecord
}

// NewMemoryTaskStore creates an empty in-memory store.
func NewMemoryTaskStore() *MemoryTaskStore {
	return &MemoryTaskStore{tasks: make(map[string]TaskRecord)}
}

func (s *MemoryTaskStore) SaveTask(_ context.Context, rec *TaskRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[rec.ID] = *rec
	return nil
}

func (s *MemoryTaskStore) GetTask(_ context.Context, id string) (*TaskRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.tasks[id]
	if !ok {
		return nil, errors.NewTaskNotFoundError(id)
	}
	out := rec
	return &out, nil
}

func (s *MemoryTaskStore) DeleteTask(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, id)
	return nil
}

func (s *MemoryTaskStore) Close() error { return nil }
