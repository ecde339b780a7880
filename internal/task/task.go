/**
 * Task model for the detection orchestrator.
 *
 * A task moves through a small state machine: queued -> processing ->
 * completed | failed | cancelled. Cancellation is legal from queued and
 * processing; terminal states accept no further transitions.
 */

package task

import (
	"time"

	"github.com/aerovision/detect-worker/internal/pipeline"
)

// Status is a task lifecycle state.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// validTransitions defines the legal state machine edges.
var validTransitions = map[Status][]Status{
	StatusQueued:     {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusCompleted, StatusFailed, StatusCancelled},
	StatusCompleted:  {},
	StatusFailed:     {},
	StatusCancelled:  {},
}

// isValidTransition reports whether moving from -> to is legal.
func isValidTransition(from, to Status) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// stageProgress maps pipeline stages to coarse completion percentages
// surfaced in status responses. Packaging is orchestrator-side work after
// the pipeline finishes.
var stageProgress = map[string]int{
	pipeline.StageExtracting:     5,
	pipeline.StageScreening:      25,
	pipeline.StageDetecting:      55,
	pipeline.StageGeoreferencing: 70,
	pipeline.StageFiltering:      80,
	pipeline.StageSaving:         90,
	StagePackaging:               95,
}

// StagePackaging is reported while the orchestrator zips task output.
const StagePackaging = "packaging"

// Task is one detection request tracked by the orchestrator.
type Task struct {
	ID            string       `json:"id"`
	Status        Status       `json:"status"`
	Stage         string       `json:"stage,omitempty"`
	Progress      int          `json:"progress"`
	Error         string       `json:"error,omitempty"`
	ArchiveName   string       `json:"archiveName,omitempty"`
	DownloadToken string       `json:"downloadToken,omitempty"`
	SubmittedAt   time.Time    `json:"submittedAt"`
	FinishedAt    time.Time    `json:"finishedAt,omitempty"`
	Job           pipeline.Job `json:"job"`
}
