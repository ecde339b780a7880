/**
 * Model boundary for the detection pipeline.
 *
 * The pipeline never loads or runs models itself; it consumes two capability
 * interfaces. Implementations are injected: an HTTP inference service for
 * production, the built-in edge-density screener or test stubs elsewhere.
 */

package model

import (
	"context"

	"github.com/aerovision/detect-worker/internal/raster"
)

// Point is a 2D position in pixel or geographic space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// RawBox is an oriented detection in tile-local pixel space as returned by a
// Detector: four corner points ordered clockwise from top-left, a class id
// and a confidence in [0,1].
type RawBox struct {
	Corners    [4]Point `json:"corners"`
	ClassID    int      `json:"class_id"`
	Confidence float64  `json:"confidence"`
}

// Screener is a coarse binary classifier scoring whether a tile is of
// interest. Score must be pure and return a confidence in [0,1]. Failures
// are tile-local: callers absorb them and continue.
type Screener interface {
	Score(ctx context.Context, tile raster.Tile) (float64, error)
}

// Detector finds oriented objects in a tile. Same failure contract as
// Screener: a per-tile error never aborts the job.
type Detector interface {
	Detect(ctx context.Context, tile raster.Tile) ([]RawBox, error)
}
