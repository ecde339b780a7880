package pipeline

import (
	"context"

	"github.com/aerovision/detect-worker/internal/errors"
	"github.com/aerovision/detect-worker/internal/logging"
	"github.com/aerovision/detect-worker/internal/model"
	"github.com/aerovision/detect-worker/internal/raster"
)

// DetectionStage runs the oriented-box detector over the fine tiles that
// survived screening.
type DetectionStage struct {
	Detector  model.Detector
	Threshold float64
	Log       *logging.Logger
}

// Run detects objects per tile, keeping boxes at or above the confidence
// threshold. A detector failure on a single tile yields zero boxes for that
// tile and the stage continues; it must never abort the job.
func (d *DetectionStage) Run(ctx context.Context, tiles *raster.TileSeq) ([]TileDetections, error) {
	var out []TileDetections
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		tile, ok := tiles.Next()
		if !ok {
			return out, nil
		}

		raw, err := d.Detector.Detect(ctx, tile)
		if err != nil {
			// Tile-local failure: absorbed, never job-fatal.
			infErr := errors.NewModelInferenceError(StageDetecting, tile.Row, tile.Col, err)
			d.Log.Warn("detector failed on tile, skipping",
				"image", tile.ImageID, "error", infErr)
			continue
		}

		var boxes []OrientedBox
		for _, rb := range raw {
			if rb.Confidence < d.Threshold {
				continue
			}
			boxes = append(boxes, OrientedBox{
				Corners:    rb.Corners,
				Space:      SpaceLocal,
				ClassID:    rb.ClassID,
				Confidence: rb.Confidence,
				Row:        tile.Row,
				Col:        tile.Col,
			})
		}

		if len(boxes) > 0 {
			out = append(out, TileDetections{
				ImageID: tile.ImageID,
				Row:     tile.Row,
				Col:     tile.Col,
				X0:      tile.X0,
				Y0:      tile.Y0,
				Boxes:   boxes,
			})
		}
	}
}
