/**
 * Oriented bounding boxes and detection results.
 *
 * A box's coordinate space is tracked explicitly: corners start tile-local,
 * are shifted to global pixel space, then mapped to geographic coordinates.
 * Mixing spaces is a programming error and the transforms reject it.
 */

package pipeline

import (
	"github.com/aerovision/detect-worker/internal/model"
)

// Space identifies the coordinate space an oriented box currently lives in.
type Space string

const (
	// SpaceLocal is tile-local pixel space, as emitted by the Detector.
	SpaceLocal Space = "local"

	// SpaceGlobal is source-image pixel space.
	SpaceGlobal Space = "global"

	// SpaceGeographic is (lon,lat) after applying the geo transform.
	SpaceGeographic Space = "geographic"
)

// OrientedBox is a detected quadrilateral with corners ordered clockwise
// from top-left. Row/Col record the fine tile that produced it, which the
// deduplicator uses for adjacency pruning and deterministic tie-breaking.
type OrientedBox struct {
	Corners    [4]model.Point
	Space      Space
	ClassID    int
	Confidence float64
	Row        int
	Col        int
}

// TileDetections pairs a fine tile with its surviving local-space boxes.
type TileDetections struct {
	ImageID string
	Row     int
	Col     int
	X0      int
	Y0      int
	Boxes   []OrientedBox
}

// DetectionResult is the externally visible artifact for one source image:
// its deduplicated detections in geographic space.
type DetectionResult struct {
	ImageID string
	Boxes   []OrientedBox
}
