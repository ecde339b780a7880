package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func geoBox(x0, y0, w, h, conf float64, row, col int) OrientedBox {
	return OrientedBox{
		Corners:    quad(x0, y0, w, h),
		Space:      SpaceGeographic,
		Confidence: conf,
		Row:        row,
		Col:        col,
	}
}

func TestDeduplicateKeepsHighestConfidence(t *testing.T) {
	// Same object seen from two adjacent tiles.
	boxes := []OrientedBox{
		geoBox(10, 10, 4, 4, 0.7, 0, 1),
		geoBox(10, 10, 4, 4, 0.9, 0, 0),
	}

	out := Deduplicate(boxes, 0.7)
	require.Len(t, out, 1)
	assert.Equal(t, 0.9, out[0].Confidence)
	assert.Equal(t, 0, out[0].Col)
}

func TestDeduplicateBelowThresholdBothSurvive(t *testing.T) {
	// IoU of these is 1/7, under any reasonable threshold.
	boxes := []OrientedBox{
		geoBox(0, 0, 2, 2, 0.9, 0, 0),
		geoBox(1, 1, 2, 2, 0.8, 0, 1),
	}

	out := Deduplicate(boxes, 0.7)
	assert.Len(t, out, 2)
}

func TestDeduplicateNonAdjacentNeverCompared(t *testing.T) {
	// Identical polygons but from tiles two columns apart: adjacency
	// pruning must leave both alone.
	boxes := []OrientedBox{
		geoBox(10, 10, 4, 4, 0.9, 0, 0),
		geoBox(10, 10, 4, 4, 0.8, 0, 2),
	}

	out := Deduplicate(boxes, 0.7)
	assert.Len(t, out, 2)
}

func TestDeduplicateTieBreakRowMajor(t *testing.T) {
	// Equal confidence: the earlier tile in row-major order wins.
	boxes := []OrientedBox{
		geoBox(10, 10, 4, 4, 0.8, 1, 0),
		geoBox(10, 10, 4, 4, 0.8, 0, 1),
	}

	out := Deduplicate(boxes, 0.7)
	require.Len(t, out, 1)
	assert.Equal(t, 0, out[0].Row)
	assert.Equal(t, 1, out[0].Col)
}

func TestDeduplicateIdempotent(t *testing.T) {
	boxes := []OrientedBox{
		geoBox(10, 10, 4, 4, 0.9, 0, 0),
		geoBox(10, 10, 4, 4, 0.7, 0, 1),
		geoBox(50, 50, 4, 4, 0.6, 3, 3),
		geoBox(50, 51, 4, 4, 0.5, 3, 4),
	}

	once := Deduplicate(boxes, 0.7)
	twice := Deduplicate(once, 0.7)
	assert.Equal(t, once, twice)
}

func TestDeduplicateSmallInputs(t *testing.T) {
	assert.Empty(t, Deduplicate(nil, 0.7))
	one := []OrientedBox{geoBox(0, 0, 1, 1, 0.5, 0, 0)}
	assert.Equal(t, one, Deduplicate(one, 0.7))
}

func TestDeduplicateChainSuppression(t *testing.T) {
	// Three near-identical boxes in a row of adjacent tiles: only the
	// most confident survives, and its suppression of the others does
	// not resurrect anything.
	boxes := []OrientedBox{
		geoBox(10, 10, 4, 4, 0.6, 0, 2),
		geoBox(10, 10, 4, 4, 0.9, 0, 0),
		geoBox(10, 10, 4, 4, 0.7, 0, 1),
	}

	out := Deduplicate(boxes, 0.7)
	require.Len(t, out, 2)
	assert.Equal(t, 0.9, out[0].Confidence)
	// (0,2) is not adjacent to (0,0), and its neighbor (0,1) was already
	// suppressed, so it survives.
	assert.Equal(t, 0.6, out[1].Confidence)
}
