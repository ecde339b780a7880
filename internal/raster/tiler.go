package raster

import (
	"image"

	"github.com/disintegration/imaging"
)

// Segment splits a raster into a row-major grid of tiles with the given
// nominal size. Edge tiles at the right/bottom are clipped to the image
// bounds, never padded, and are tagged via Tile.Clipped.
//
// When mask is non-nil only tiles whose pixel extent intersects a flagged
// coarse-grid cell are emitted; this is the optimization that skips
// fine-resolution work on uninteresting regions.
//
// The returned sequence is lazy and finite. Each Segment call yields a fresh
// sequence with its own cursor, so concurrent callers never share iteration
// state.
func Segment(img *RasterImage, tileSize int, res Resolution, mask *CandidateMask) *TileSeq {
	return &TileSeq{
		img:      img,
		tileSize: tileSize,
		res:      res,
		mask:     mask,
		rows:     (img.Height + tileSize - 1) / tileSize,
		cols:     (img.Width + tileSize - 1) / tileSize,
	}
}

// TileSeq iterates a tile grid in row-major order.
type TileSeq struct {
	img      *RasterImage
	tileSize int
	res      Resolution
	mask     *CandidateMask
	rows     int
	cols     int
	row      int
	col      int
}

// GridSize returns the number of rows and columns in the full grid,
// before any mask filtering.
func (s *TileSeq) GridSize() (rows, cols int) { return s.rows, s.cols }

// Next returns the next tile in row-major order. The second return value is
// false once the sequence is exhausted.
func (s *TileSeq) Next() (Tile, bool) {
	for s.row < s.rows {
		row, col := s.row, s.col

		s.col++
		if s.col == s.cols {
			s.col = 0
			s.row++
		}

		x0 := col * s.tileSize
		y0 := row * s.tileSize
		w := s.tileSize
		h := s.tileSize
		clipped := false
		if x0+w > s.img.Width {
			w = s.img.Width - x0
			clipped = true
		}
		if y0+h > s.img.Height {
			h = s.img.Height - y0
			clipped = true
		}

		if s.mask != nil && !s.intersectsMask(x0, y0, w, h) {
			continue
		}

		return Tile{
			ImageID:    s.img.ID,
			X0:         x0,
			Y0:         y0,
			Width:      w,
			Height:     h,
			Resolution: s.res,
			Row:        row,
			Col:        col,
			Clipped:    clipped,
			Pixels:     imaging.Crop(s.img.Pixels, image.Rect(x0, y0, x0+w, y0+h)),
		}, true
	}
	return Tile{}, false
}

// intersectsMask reports whether the pixel rect overlaps any of-interest
// coarse cell.
func (s *TileSeq) intersectsMask(x0, y0, w, h int) bool {
	cell := s.mask.CellSize()
	if cell <= 0 {
		return false
	}
	rowLo := y0 / cell
	rowHi := (y0 + h - 1) / cell
	colLo := x0 / cell
	colHi := (x0 + w - 1) / cell
	for r := rowLo; r <= rowHi; r++ {
		for c := colLo; c <= colHi; c++ {
			if s.mask.Contains(r, c) {
				return true
			}
		}
	}
	return false
}
