/**
 * Detection pipeline for the worker.
 *
 * Runs the stages of one task sequentially: load rasters, coarse screening,
 * fine detection, georeferencing, cross-tile dedup, output writing. Stage
 * boundaries are the only cancellation points; a stage in flight always runs
 * to completion, which bounds cancellation latency to one stage's tile work.
 */

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/aerovision/detect-worker/internal/logging"
	"github.com/aerovision/detect-worker/internal/model"
	"github.com/aerovision/detect-worker/internal/raster"
)

// Stage names reported to the orchestrator, in execution order.
const (
	StageExtracting     = "extracting"
	StageScreening      = "screening"
	StageDetecting      = "detecting"
	StageGeoreferencing = "georeferencing"
	StageFiltering      = "filtering"
	StageSaving         = "saving"
)

// ErrCancelled is returned when a cooperative cancellation check fires at a
// stage boundary.
var ErrCancelled = errors.New("task cancelled")

// Job describes one unit of pipeline work.
type Job struct {
	TaskID          string  `json:"taskId"`
	InputDir        string  `json:"inputDir"`
	OutputDir       string  `json:"outputDir"`
	ScreenThreshold float64 `json:"screenThreshold"`
	DetectThreshold float64 `json:"detectThreshold"`
	DedupeIoU       float64 `json:"dedupeIoU"`
	OutputType      string  `json:"outputType"` // "json" or "txt"
}

// Options are deployment-wide pipeline settings, as opposed to per-job
// thresholds carried on the Job.
type Options struct {
	ScreenTileSize int
	DetectTileSize int
	ScreenWorkers  int
	WidenPolicy    raster.WidenPolicy
}

// Pipeline executes detection jobs. Safe for concurrent use: all mutable
// state (rasters, tiles, boxes) is per-Run.
type Pipeline struct {
	Screener model.Screener
	Detector model.Detector
	Opts     Options
	Log      *logging.Logger
}

// New creates a pipeline with the given models and options.
func New(screener model.Screener, detector model.Detector, opts Options, log *logging.Logger) *Pipeline {
	return &Pipeline{Screener: screener, Detector: detector, Opts: opts, Log: log}
}

// Run executes all stages for one job. report is invoked with the stage name
// as each stage begins; cancelled is checked at every stage boundary and, if
// true, Run returns ErrCancelled without producing partial results.
func (p *Pipeline) Run(ctx context.Context, job Job, report func(stage string), cancelled func() bool) ([]DetectionResult, error) {
	if report == nil {
		report = func(string) {}
	}
	if cancelled == nil {
		cancelled = func() bool { return false }
	}

	// Stage: extracting (raster + georeferencing metadata loading).
	report(StageExtracting)
	images, err := raster.LoadDir(job.InputDir)
	if err != nil {
		return nil, err
	}
	p.Log.Info("rasters loaded", "task", job.TaskID, "count", len(images))

	if cancelled() {
		return nil, ErrCancelled
	}

	// Stage: screening (coarse pass over every image).
	report(StageScreening)
	masks := make(map[string]*raster.CandidateMask, len(images))
	screening := &ScreeningStage{
		Screener:  p.Screener,
		Threshold: job.ScreenThreshold,
		Workers:   p.Opts.ScreenWorkers,
		Log:       p.Log.With("screening"),
	}
	for _, img := range images {
		mask := raster.NewCandidateMask(p.Opts.WidenPolicy, p.Opts.ScreenTileSize)
		seq := raster.Segment(img, p.Opts.ScreenTileSize, raster.ResolutionCoarse, nil)
		if err := screening.Run(ctx, seq, mask); err != nil {
			return nil, err
		}
		masks[img.ID] = mask
		p.Log.Info("image screened", "task", job.TaskID, "image", img.ID, "cells", mask.Len())
	}

	if cancelled() {
		return nil, ErrCancelled
	}

	// Stage: detecting (fine pass over flagged regions only).
	report(StageDetecting)
	detection := &DetectionStage{
		Detector:  p.Detector,
		Threshold: job.DetectThreshold,
		Log:       p.Log.With("detection"),
	}
	detected := make(map[string][]TileDetections, len(images))
	for _, img := range images {
		seq := raster.Segment(img, p.Opts.DetectTileSize, raster.ResolutionFine, masks[img.ID])
		tds, err := detection.Run(ctx, seq)
		if err != nil {
			return nil, err
		}
		detected[img.ID] = tds
	}

	if cancelled() {
		return nil, ErrCancelled
	}

	// Stage: georeferencing (tile-local -> global pixel -> geographic).
	report(StageGeoreferencing)
	geoBoxes := make(map[string][]OrientedBox, len(images))
	for _, img := range images {
		for _, td := range detected[img.ID] {
			for _, box := range td.Boxes {
				global, err := ToGlobal(td, box)
				if err != nil {
					return nil, err
				}
				geographic, err := ToGeographic(global, img.Transform)
				if err != nil {
					return nil, err
				}
				geoBoxes[img.ID] = append(geoBoxes[img.ID], geographic)
			}
		}
	}

	if cancelled() {
		return nil, ErrCancelled
	}

	// Stage: filtering (cross-tile duplicate suppression).
	report(StageFiltering)
	results := make([]DetectionResult, 0, len(images))
	for _, img := range images {
		kept := Deduplicate(geoBoxes[img.ID], job.DedupeIoU)
		results = append(results, DetectionResult{ImageID: img.ID, Boxes: kept})
		p.Log.Info("image filtered", "task", job.TaskID, "image", img.ID,
			"before", len(geoBoxes[img.ID]), "after", len(kept))
	}

	if cancelled() {
		return nil, ErrCancelled
	}

	// Stage: saving.
	report(StageSaving)
	if err := os.MkdirAll(job.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	switch job.OutputType {
	case "", "json":
		err = WriteJSON(job.OutputDir, results)
	case "txt":
		err = WriteTXT(job.OutputDir, results)
	default:
		err = fmt.Errorf("unknown output type %q", job.OutputType)
	}
	if err != nil {
		return nil, err
	}

	return results, nil
}
