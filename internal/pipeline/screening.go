package pipeline

import (
	"context"
	"sync"

	"github.com/aerovision/detect-worker/internal/errors"
	"github.com/aerovision/detect-worker/internal/logging"
	"github.com/aerovision/detect-worker/internal/model"
	"github.com/aerovision/detect-worker/internal/raster"
)

// ScreeningStage runs the coarse classifier over a tile sequence and builds
// the candidate mask for the fine pass.
//
// The threshold is deliberately low (0.35 by default): a false negative here
// loses the object for good, while a false positive only costs fine-pass
// work that the detector filters anyway.
type ScreeningStage struct {
	Screener  model.Screener
	Threshold float64
	Workers   int
	Log       *logging.Logger
}

// Run screens every tile in the sequence, marking rows/columns of interest
// into mask. Tile-local model failures are logged and absorbed: the tile
// simply contributes no mark. Tiles are fanned out across a bounded number
// of goroutines; the call returns only after all tiles are scored (barrier),
// and the mask content is independent of completion order.
func (s *ScreeningStage) Run(ctx context.Context, tiles *raster.TileSeq, mask *raster.CandidateMask) error {
	workers := s.Workers
	if workers < 1 {
		workers = 1
	}

	type scored struct {
		row, col int
		score    float64
		err      error
	}

	work := make(chan raster.Tile)
	results := make(chan scored)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for tile := range work {
				score, err := s.Screener.Score(ctx, tile)
				results <- scored{row: tile.Row, col: tile.Col, score: score, err: err}
			}
		}()
	}

	go func() {
		defer close(work)
		for {
			tile, ok := tiles.Next()
			if !ok {
				return
			}
			select {
			case work <- tile:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	for r := range results {
		if r.err != nil {
			// Tile-local failure: absorbed, never job-fatal.
			infErr := errors.NewModelInferenceError(StageScreening, r.row, r.col, r.err)
			s.Log.Warn("screener failed on tile, skipping", "error", infErr)
			continue
		}
		if r.score >= s.Threshold {
			mask.Mark(r.row, r.col)
		}
	}

	return ctx.Err()
}
