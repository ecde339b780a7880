package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aerovision/detect-worker/internal/geo"
	"github.com/aerovision/detect-worker/internal/model"
)

func TestToGlobalAddsTileOrigin(t *testing.T) {
	td := TileDetections{X0: 1024, Y0: 2048}
	box := OrientedBox{
		Corners:    quad(10, 20, 30, 40),
		Space:      SpaceLocal,
		Confidence: 0.8,
		Row:        2,
		Col:        1,
	}

	out, err := ToGlobal(td, box)
	require.NoError(t, err)
	assert.Equal(t, SpaceGlobal, out.Space)
	assert.Equal(t, model.Point{X: 1034, Y: 2068}, out.Corners[0])
	assert.Equal(t, model.Point{X: 1064, Y: 2068}, out.Corners[1])
	assert.Equal(t, model.Point{X: 1064, Y: 2108}, out.Corners[2])
	assert.Equal(t, model.Point{X: 1034, Y: 2108}, out.Corners[3])

	// Metadata rides along.
	assert.Equal(t, 0.8, out.Confidence)
	assert.Equal(t, 2, out.Row)
	assert.Equal(t, 1, out.Col)
}

func TestToGlobalRejectsWrongSpace(t *testing.T) {
	td := TileDetections{}
	_, err := ToGlobal(td, OrientedBox{Space: SpaceGlobal})
	assert.Error(t, err)
	_, err = ToGlobal(td, OrientedBox{Space: SpaceGeographic})
	assert.Error(t, err)
}

func TestToGeographicAppliesTransform(t *testing.T) {
	tr, err := geo.FromAffine(100, 0.5, 0, 40, 0, -0.5)
	require.NoError(t, err)

	box := OrientedBox{Corners: quad(0, 0, 2, 2), Space: SpaceGlobal}
	out, err := ToGeographic(box, tr)
	require.NoError(t, err)
	assert.Equal(t, SpaceGeographic, out.Space)
	assert.Equal(t, model.Point{X: 100, Y: 40}, out.Corners[0])
	assert.Equal(t, model.Point{X: 101, Y: 40}, out.Corners[1])
	assert.Equal(t, model.Point{X: 101, Y: 39}, out.Corners[2])
	assert.Equal(t, model.Point{X: 100, Y: 39}, out.Corners[3])
}

func TestToGeographicRejectsWrongSpace(t *testing.T) {
	tr, err := geo.FromAffine(0, 1, 0, 0, 0, 1)
	require.NoError(t, err)

	_, err = ToGeographic(OrientedBox{Space: SpaceLocal}, tr)
	assert.Error(t, err)
	_, err = ToGeographic(OrientedBox{Space: SpaceGeographic}, tr)
	assert.Error(t, err)
}
