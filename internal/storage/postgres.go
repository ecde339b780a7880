/**
 * PostgreSQL task store.
 *
 * Persists task records in a single table, upserting on every save so the
 * worker can create the row on first status update even when the API layer
 * did not.
 */

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/aerovision/detect-worker/internal/errors"
)

// PostgresTaskStore persists task records in PostgreSQL.
type PostgresTaskStore struct {
	db *sql.DB
}

// NewPostgresTaskStore opens a connection pool against databaseURL and
// verifies connectivity.
func NewPostgresTaskStore(databaseURL string) (*PostgresTaskStore, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresTaskStore{db: db}, nil
}

// SaveTask upserts the task record.
func (p *PostgresTaskStore) SaveTask(ctx context.Context, rec *TaskRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("task ID is required")
	}
	if rec.Status == "" {
		return fmt.Errorf("status is required")
	}

	query := `
		INSERT INTO detection_tasks (
			id, status, stage, progress, error,
			archive_name, submitted_at, updated_at
		) VALUES (
			$1::uuid, $2, NULLIF($3, ''), $4, NULLIF($5, ''),
			NULLIF($6, ''), $7, NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			stage = EXCLUDED.stage,
			progress = EXCLUDED.progress,
			error = EXCLUDED.error,
			archive_name = COALESCE(EXCLUDED.archive_name, detection_tasks.archive_name),
			updated_at = NOW()
		RETURNING id
	`

	var returnedID string
	err := p.db.QueryRowContext(ctx, query,
		rec.ID,
		rec.Status,
		rec.Stage,
		rec.Progress,
		rec.Error,
		rec.ArchiveName,
		rec.SubmittedAt,
	).Scan(&returnedID)
	if err != nil {
		return errors.NewStorageFailedError(rec.ID, err)
	}
	return nil
}

// GetTask fetches a task record by id.
func (p *PostgresTaskStore) GetTask(ctx context.Context, id string) (*TaskRecord, error) {
	if id == "" {
		return nil, fmt.Errorf("task ID is required")
	}

	query := `
		SELECT id, status, stage, progress, error,
		       archive_name, submitted_at, updated_at
		FROM detection_tasks
		WHERE id = $1::uuid
	`

	var (
		rec                        TaskRecord
		stage, errMsg, archiveName sql.NullString
	)
	err := p.db.QueryRowContext(ctx, query, id).Scan(
		&rec.ID, &rec.Status, &stage, &rec.Progress, &errMsg,
		&archiveName, &rec.SubmittedAt, &rec.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errors.NewTaskNotFoundError(id)
	}
	if err != nil {
		return nil, errors.NewStorageFailedError(id, err)
	}

	rec.Stage = stage.String
	rec.Error = errMsg.String
	rec.ArchiveName = archiveName.String
	return &rec, nil
}

// DeleteTask removes a task record. Deleting a missing record is not an error.
func (p *PostgresTaskStore) DeleteTask(ctx context.Context, id string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM detection_tasks WHERE id = $1::uuid`, id)
	if err != nil {
		return errors.NewStorageFailedError(id, err)
	}
	return nil
}

// Ping checks database connectivity.
func (p *PostgresTaskStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the connection pool.
func (p *PostgresTaskStore) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}
