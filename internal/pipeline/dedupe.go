package pipeline

import (
	"sort"
)

// Deduplicate removes near-duplicate detections produced when an object
// straddles a tile boundary and is detected independently in two or more
// tiles. Oriented non-maximum suppression: boxes are visited in descending
// confidence order (ties broken by earlier row-major tile order, so output
// is reproducible) and a box is suppressed when its polygon IoU with any
// surviving higher-ranked box exceeds the threshold.
//
// Only boxes from adjacent tiles (row and column distance <= 1) are
// compared: with clipped, non-overlapping fine tiles, true duplicates can
// only occur across a shared edge or corner.
//
// Idempotent: applying it to its own output changes nothing.
func Deduplicate(boxes []OrientedBox, iouThreshold float64) []OrientedBox {
	if len(boxes) < 2 {
		return boxes
	}

	ranked := make([]OrientedBox, len(boxes))
	copy(ranked, boxes)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Confidence != ranked[j].Confidence {
			return ranked[i].Confidence > ranked[j].Confidence
		}
		if ranked[i].Row != ranked[j].Row {
			return ranked[i].Row < ranked[j].Row
		}
		return ranked[i].Col < ranked[j].Col
	})

	suppressed := make([]bool, len(ranked))
	for i := 0; i < len(ranked); i++ {
		if suppressed[i] {
			continue
		}
		for j := i + 1; j < len(ranked); j++ {
			if suppressed[j] {
				continue
			}
			if !adjacent(ranked[i], ranked[j]) {
				continue
			}
			if boxIoU(ranked[i].Corners, ranked[j].Corners) > iouThreshold {
				suppressed[j] = true
			}
		}
	}

	out := make([]OrientedBox, 0, len(ranked))
	for i, box := range ranked {
		if !suppressed[i] {
			out = append(out, box)
		}
	}
	return out
}

func adjacent(a, b OrientedBox) bool {
	dr := a.Row - b.Row
	if dr < 0 {
		dr = -dr
	}
	dc := a.Col - b.Col
	if dc < 0 {
		dc = -dc
	}
	return dr <= 1 && dc <= 1
}
