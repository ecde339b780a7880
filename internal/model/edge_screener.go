package model

import (
	"context"

	"github.com/anthonynsimon/bild/effect"

	"github.com/aerovision/detect-worker/internal/raster"
)

// EdgeScreener is the built-in Screener: it scores a tile by the fraction of
// strong Sobel edges it contains. Man-made targets (crosswalks, buildings,
// panels) are edge-dense against terrain, which makes this a usable stand-in
// when no trained screener service is configured, and a deterministic
// implementation for tests.
type EdgeScreener struct {
	// EdgeLevel is the grayscale gradient magnitude above which a pixel
	// counts as an edge. Zero means the default (96).
	EdgeLevel uint8

	// Gain scales the edge fraction into a score; results are clamped to
	// [0,1]. Zero means the default (8).
	Gain float64
}

const (
	defaultEdgeLevel = 96
	defaultEdgeGain  = 8.0
)

// Score implements Screener.
func (s *EdgeScreener) Score(_ context.Context, tile raster.Tile) (float64, error) {
	level := s.EdgeLevel
	if level == 0 {
		level = defaultEdgeLevel
	}
	gain := s.Gain
	if gain == 0 {
		gain = defaultEdgeGain
	}

	edges := effect.Sobel(tile.Pixels)
	bounds := edges.Bounds()
	total := bounds.Dx() * bounds.Dy()
	if total == 0 {
		return 0, nil
	}

	strong := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := edges.At(x, y).RGBA()
			// Sobel output is gray; any channel carries the magnitude.
			mag := uint8(((r + g + b) / 3) >> 8)
			if mag >= level {
				strong++
			}
		}
	}

	score := gain * float64(strong) / float64(total)
	if score > 1 {
		score = 1
	}
	return score, nil
}
