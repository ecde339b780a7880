/**
 * Redis task store.
 *
 * Keeps task records as JSON under detect:task:<id>. Terminal records get a
 * TTL matching the task retention window, so Redis expires them without a
 * sweeper.
 */

package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aerovision/detect-worker/internal/errors"
)

const taskKeyPrefix = "detect:task:"

// RedisTaskStore persists task records in Redis.
type RedisTaskStore struct {
	client      *redis.Client
	terminalTTL time.Duration
}

// NewRedisTaskStore connects to redisURL and verifies connectivity.
// terminalTTL is applied to records in a final state.
func NewRedisTaskStore(redisURL string, terminalTTL time.Duration) (*RedisTaskStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &RedisTaskStore{client: client, terminalTTL: terminalTTL}, nil
}

func (s *RedisTaskStore) SaveTask(ctx context.Context, rec *TaskRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.NewStorageFailedError(rec.ID, err)
	}

	var ttl time.Duration // 0 keeps the key until the task finishes
	if rec.terminal() {
		ttl = s.terminalTTL
	}
	if err := s.client.Set(ctx, taskKeyPrefix+rec.ID, data, ttl).Err(); err != nil {
		return errors.NewStorageFailedError(rec.ID, err)
	}
	return nil
}

func (s *RedisTaskStore) GetTask(ctx context.Context, id string) (*TaskRecord, error) {
	data, err := s.client.Get(ctx, taskKeyPrefix+id).Bytes()
	if err == redis.Nil {
		return nil, errors.NewTaskNotFoundError(id)
	}
	if err != nil {
		return nil, errors.NewStorageFailedError(id, err)
	}

	var rec TaskRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errors.NewStorageFailedError(id, err)
	}
	return &rec, nil
}

func (s *RedisTaskStore) DeleteTask(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, taskKeyPrefix+id).Err(); err != nil {
		return errors.NewStorageFailedError(id, err)
	}
	return nil
}

func (s *RedisTaskStore) Close() error {
	return s.client.Close()
}
