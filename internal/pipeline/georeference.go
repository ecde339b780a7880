package pipeline

import (
	"fmt"

	"github.com/aerovision/detect-worker/internal/geo"
	"github.com/aerovision/detect-worker/internal/model"
)

// ToGlobal shifts a tile-local box into source-image pixel space by adding
// the tile's pixel origin to each corner. Corner ordering is preserved:
// downstream consumers assume clockwise-from-top-left throughout.
func ToGlobal(td TileDetections, box OrientedBox) (OrientedBox, error) {
	if box.Space != SpaceLocal {
		return OrientedBox{}, fmt.Errorf("ToGlobal expects a local-space box, got %s", box.Space)
	}

	out := box
	for i, c := range box.Corners {
		out.Corners[i] = model.Point{
			X: c.X + float64(td.X0),
			Y: c.Y + float64(td.Y0),
		}
	}
	out.Space = SpaceGlobal
	return out, nil
}

// ToGeographic applies the image's affine transform to each corner
// independently, preserving corner ordering and count.
func ToGeographic(box OrientedBox, transform geo.Transform) (OrientedBox, error) {
	if box.Space != SpaceGlobal {
		return OrientedBox{}, fmt.Errorf("ToGeographic expects a global-space box, got %s", box.Space)
	}

	out := box
	for i, c := range box.Corners {
		lon, lat := transform.ToGeo(c.X, c.Y)
		out.Corners[i] = model.Point{X: lon, Y: lat}
	}
	out.Space = SpaceGeographic
	return out, nil
}
