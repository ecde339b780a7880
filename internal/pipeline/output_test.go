package pipeline

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	dir := t.TempDir()
	results := []DetectionResult{
		{
			ImageID: "alpha",
			Boxes: []OrientedBox{
				geoBox(10, 20, 2, 2, 0.9, 0, 0),
				geoBox(30, 40, 2, 2, 0.6, 1, 1),
			},
		},
		{ImageID: "beta"},
	}

	require.NoError(t, WriteJSON(dir, results))

	data, err := os.ReadFile(filepath.Join(dir, "output.json"))
	require.NoError(t, err)

	var records []Record
	require.NoError(t, json.Unmarshal(data, &records))
	require.Len(t, records, 2)

	assert.Equal(t, "alpha", records[0].Image)
	require.Len(t, records[0].Coordinates, 2)
	require.Len(t, records[0].Confidence, 2)
	assert.Equal(t, [2]float64{10, 20}, records[0].Coordinates[0][0])
	assert.Equal(t, [2]float64{12, 20}, records[0].Coordinates[0][1])
	assert.Equal(t, []float64{0.9, 0.6}, records[0].Confidence)

	// An image with no detections still gets a record.
	assert.Equal(t, "beta", records[1].Image)
	assert.Empty(t, records[1].Coordinates)
}

func TestWriteTXTOneFilePerImage(t *testing.T) {
	dir := t.TempDir()
	results := []DetectionResult{
		{ImageID: "alpha", Boxes: []OrientedBox{geoBox(1, 2, 3, 4, 0.75, 0, 0)}},
		{ImageID: "beta"},
	}

	require.NoError(t, WriteTXT(dir, results))

	data, err := os.ReadFile(filepath.Join(dir, "alpha.txt"))
	require.NoError(t, err)
	assert.Equal(t, "1,2 4,2 4,6 1,6 0.75\n", string(data))

	data, err = os.ReadFile(filepath.Join(dir, "beta.txt"))
	require.NoError(t, err)
	assert.Empty(t, string(data))
}
