/**
 * Raster and tile model for the detection pipeline.
 *
 * A RasterImage is an already-decoded aerial/satellite image plus its
 * georeferencing transform; pixel buffers are owned by the caller for the
 * duration of a task. Tiles are generated fresh per pipeline stage and never
 * mutated after creation.
 */

package raster

import (
	"image"

	"github.com/aerovision/detect-worker/internal/geo"
)

// Resolution tags which tiling pass produced a tile.
type Resolution string

const (
	// ResolutionCoarse is the screening pass (small tiles, cheap classifier).
	ResolutionCoarse Resolution = "coarse"

	// ResolutionFine is the detection pass (large tiles, oriented-box detector).
	ResolutionFine Resolution = "fine"
)

// RasterImage is a decoded source raster. Immutable once loaded.
type RasterImage struct {
	ID        string
	Width     int
	Height    int
	Pixels    image.Image
	Transform geo.Transform
}

// Tile is a rectangular pixel-space subdivision of a source raster.
type Tile struct {
	ImageID    string
	X0         int
	Y0         int
	Width      int
	Height     int
	Resolution Resolution
	Row        int
	Col        int

	// Clipped is set on right/bottom edge tiles whose actual extent is
	// smaller than the nominal tile size.
	Clipped bool

	Pixels image.Image
}
