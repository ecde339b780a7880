package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aerovision/detect-worker/internal/logging"
	"github.com/aerovision/detect-worker/internal/model"
	"github.com/aerovision/detect-worker/internal/raster"
)

func testRaster(t *testing.T, id string, width, height int) *raster.RasterImage {
	t.Helper()
	return &raster.RasterImage{
		ID:     id,
		Width:  width,
		Height: height,
		Pixels: image.NewRGBA(image.Rect(0, 0, width, height)),
	}
}

func testLogger() *logging.Logger {
	return logging.NewLoggerTo(discard{}, "test")
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// scoreFunc adapts a function into a model.Screener.
type scoreFunc func(tile raster.Tile) (float64, error)

func (f scoreFunc) Score(_ context.Context, tile raster.Tile) (float64, error) { return f(tile) }

// detectFunc adapts a function into a model.Detector.
type detectFunc func(tile raster.Tile) ([]model.RawBox, error)

func (f detectFunc) Detect(_ context.Context, tile raster.Tile) ([]model.RawBox, error) {
	return f(tile)
}

func TestScreeningMarksTilesAtOrAboveThreshold(t *testing.T) {
	img := testRaster(t, "a", 64, 64) // 2x2 coarse grid at size 32

	scores := map[[2]int]float64{
		{0, 0}: 0.9,
		{0, 1}: 0.35, // boundary: >= keeps it
		{1, 0}: 0.34,
		{1, 1}: 0.0,
	}
	stage := &ScreeningStage{
		Screener: scoreFunc(func(tile raster.Tile) (float64, error) {
			return scores[[2]int{tile.Row, tile.Col}], nil
		}),
		Threshold: 0.35,
		Workers:   2,
		Log:       testLogger(),
	}

	mask := raster.NewCandidateMask(raster.WidenCell, 32)
	err := stage.Run(context.Background(), raster.Segment(img, 32, raster.ResolutionCoarse, nil), mask)
	require.NoError(t, err)

	assert.True(t, mask.Contains(0, 0))
	assert.True(t, mask.Contains(0, 1))
	assert.False(t, mask.Contains(1, 0))
	assert.False(t, mask.Contains(1, 1))
}

func TestScreeningAbsorbsTileFailures(t *testing.T) {
	img := testRaster(t, "a", 64, 64)

	stage := &ScreeningStage{
		Screener: scoreFunc(func(tile raster.Tile) (float64, error) {
			if tile.Row == 0 && tile.Col == 0 {
				return 0, fmt.Errorf("model unavailable")
			}
			return 1.0, nil
		}),
		Threshold: 0.5,
		Workers:   1,
		Log:       testLogger(),
	}

	mask := raster.NewCandidateMask(raster.WidenCell, 32)
	err := stage.Run(context.Background(), raster.Segment(img, 32, raster.ResolutionCoarse, nil), mask)
	require.NoError(t, err)

	// The failed tile contributes no mark; everything else is intact.
	assert.False(t, mask.Contains(0, 0))
	assert.True(t, mask.Contains(0, 1))
	assert.True(t, mask.Contains(1, 0))
	assert.True(t, mask.Contains(1, 1))
}

func TestScreeningDeterministicAcrossWorkerCounts(t *testing.T) {
	img := testRaster(t, "a", 256, 256) // 8x8 grid at size 32
	screener := scoreFunc(func(tile raster.Tile) (float64, error) {
		if (tile.Row+tile.Col)%3 == 0 {
			return 0.8, nil
		}
		return 0.1, nil
	})

	run := func(workers int) *raster.CandidateMask {
		mask := raster.NewCandidateMask(raster.WidenCell, 32)
		stage := &ScreeningStage{Screener: screener, Threshold: 0.5, Workers: workers, Log: testLogger()}
		require.NoError(t, stage.Run(context.Background(),
			raster.Segment(img, 32, raster.ResolutionCoarse, nil), mask))
		return mask
	}

	one := run(1)
	eight := run(8)
	require.Equal(t, one.Len(), eight.Len())
	for r := 0; r < 8; r++ {
		for c := 0; c < 8; c++ {
			assert.Equal(t, one.Contains(r, c), eight.Contains(r, c), "cell (%d,%d)", r, c)
		}
	}
}

func TestScreeningReturnsContextError(t *testing.T) {
	img := testRaster(t, "a", 128, 128)
	ctx, cancel := context.WithCancel(context.Background())

	var once sync.Once
	stage := &ScreeningStage{
		Screener: scoreFunc(func(tile raster.Tile) (float64, error) {
			once.Do(cancel)
			return 0.0, ctx.Err()
		}),
		Threshold: 0.5,
		Workers:   2,
		Log:       testLogger(),
	}

	mask := raster.NewCandidateMask(raster.WidenCell, 32)
	err := stage.Run(ctx, raster.Segment(img, 32, raster.ResolutionCoarse, nil), mask)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDetectionFiltersByThreshold(t *testing.T) {
	img := testRaster(t, "a", 128, 64) // 1x2 fine grid at size 64

	stage := &DetectionStage{
		Detector: detectFunc(func(tile raster.Tile) ([]model.RawBox, error) {
			return []model.RawBox{
				{Corners: quad(1, 1, 5, 5), Confidence: 0.9},
				{Corners: quad(10, 10, 5, 5), Confidence: 0.49},
			}, nil
		}),
		Threshold: 0.5,
		Log:       testLogger(),
	}

	out, err := stage.Run(context.Background(), raster.Segment(img, 64, raster.ResolutionFine, nil))
	require.NoError(t, err)
	require.Len(t, out, 2)
	for _, td := range out {
		require.Len(t, td.Boxes, 1)
		assert.Equal(t, 0.9, td.Boxes[0].Confidence)
		assert.Equal(t, SpaceLocal, td.Boxes[0].Space)
		assert.Equal(t, td.Row, td.Boxes[0].Row)
		assert.Equal(t, td.Col, td.Boxes[0].Col)
	}
}

func TestDetectionIsolatesFailingTile(t *testing.T) {
	img := testRaster(t, "a", 128, 64)

	stage := &DetectionStage{
		Detector: detectFunc(func(tile raster.Tile) ([]model.RawBox, error) {
			if tile.Col == 0 {
				return nil, errors.New("inference timeout")
			}
			return []model.RawBox{{Corners: quad(1, 1, 5, 5), Confidence: 0.8}}, nil
		}),
		Threshold: 0.5,
		Log:       testLogger(),
	}

	out, err := stage.Run(context.Background(), raster.Segment(img, 64, raster.ResolutionFine, nil))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 1, out[0].Col)
}

func TestDetectionRecordsTileOrigin(t *testing.T) {
	img := testRaster(t, "a", 128, 128)

	stage := &DetectionStage{
		Detector: detectFunc(func(tile raster.Tile) ([]model.RawBox, error) {
			if tile.Row == 1 && tile.Col == 1 {
				return []model.RawBox{{Corners: quad(0, 0, 4, 4), Confidence: 0.9}}, nil
			}
			return nil, nil
		}),
		Threshold: 0.5,
		Log:       testLogger(),
	}

	out, err := stage.Run(context.Background(), raster.Segment(img, 64, raster.ResolutionFine, nil))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 64, out[0].X0)
	assert.Equal(t, 64, out[0].Y0)
}
