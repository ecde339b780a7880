package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

/**
 * Custom error types for the detection worker.
 *
 * Every error carries a stable code so that callers (HTTP layer, queue
 * consumer, stores) can branch on the failure class without string matching.
 */

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Job-fatal errors
	ErrorInvalidTransform ErrorCode = "INVALID_TRANSFORM"

	// Tile-local errors (absorbed by the pipeline, never job-fatal)
	ErrorModelInference ErrorCode = "MODEL_INFERENCE_FAILED"

	// Orchestrator errors (caller-visible, never retried automatically)
	ErrorQueueFull    ErrorCode = "QUEUE_FULL"
	ErrorTaskNotFound ErrorCode = "TASK_NOT_FOUND"
	ErrorTokenExpired ErrorCode = "TOKEN_EXPIRED"

	// Storage errors
	ErrorStorageFailed ErrorCode = "STORAGE_FAILED"
)

// PipelineError represents a structured worker error
type PipelineError struct {
	Code      ErrorCode
	Message   string
	TaskID    string
	Timestamp time.Time
	Details   map[string]interface{}
	Cause     error
}

func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// Factory functions for common errors

func NewInvalidTransformError(detail string, cause error) *PipelineError {
	return &PipelineError{
		Code:      ErrorInvalidTransform,
		Message:   fmt.Sprintf("Degenerate geo transform: %s", detail),
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewModelInferenceError(stage string, row, col int, cause error) *PipelineError {
	return &PipelineError{
		Code:      ErrorModelInference,
		Message:   fmt.Sprintf("Model inference failed during %s on tile (%d,%d)", stage, row, col),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"stage": stage,
			"row":   row,
			"col":   col,
		},
		Cause: cause,
	}
}

func NewQueueFullError(capacity int) *PipelineError {
	return &PipelineError{
		Code:      ErrorQueueFull,
		Message:   fmt.Sprintf("Task queue is at capacity (%d), retry later", capacity),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"capacity": capacity,
		},
	}
}

func NewTaskNotFoundError(taskID string) *PipelineError {
	return &PipelineError{
		Code:      ErrorTaskNotFound,
		Message:   fmt.Sprintf("No task with id %s", taskID),
		TaskID:    taskID,
		Timestamp: time.Now(),
	}
}

func NewTokenExpiredError(cause error) *PipelineError {
	return &PipelineError{
		Code:      ErrorTokenExpired,
		Message:   "Download token is expired or invalid",
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewStorageFailedError(taskID string, cause error) *PipelineError {
	return &PipelineError{
		Code:      ErrorStorageFailed,
		Message:   "Failed to persist task state",
		TaskID:    taskID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

// Code returns the error code of err if it is (or wraps) a PipelineError,
// otherwise the empty string.
func Code(err error) ErrorCode {
	var pe *PipelineError
	if stderrors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// Predicates for branching on failure class.

func IsInvalidTransform(err error) bool { return Code(err) == ErrorInvalidTransform }
func IsModelInference(err error) bool   { return Code(err) == ErrorModelInference }
func IsQueueFull(err error) bool        { return Code(err) == ErrorQueueFull }
func IsTaskNotFound(err error) bool     { return Code(err) == ErrorTaskNotFound }
func IsTokenExpired(err error) bool     { return Code(err) == ErrorTokenExpired }

// ToMap converts error to map for database storage
func (e *PipelineError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}
