/**
 * Affine georeferencing for raster pixels.
 *
 * A Transform maps pixel (col,row) to geographic (lon,lat) with the six
 * coefficients of a world file / geo-raster affine transform. Both
 * construction paths normalize to the same representation.
 */

package geo

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/aerovision/detect-worker/internal/errors"
)

// Transform holds the six affine coefficients of a pixel-to-geographic
// mapping:
//
//	lon = OriginX + px*PixelSizeX + py*RotX
//	lat = OriginY + px*RotY + py*PixelSizeY
type Transform struct {
	OriginX    float64
	OriginY    float64
	PixelSizeX float64
	PixelSizeY float64
	RotX       float64
	RotY       float64
}

// FromAffine builds a Transform from native geo-raster affine coefficients,
// in the order (originX, pixelSizeX, rotX, originY, rotY, pixelSizeY) used by
// geo-raster metadata.
func FromAffine(originX, pixelSizeX, rotX, originY, rotY, pixelSizeY float64) (Transform, error) {
	t := Transform{
		OriginX:    originX,
		OriginY:    originY,
		PixelSizeX: pixelSizeX,
		PixelSizeY: pixelSizeY,
		RotX:       rotX,
		RotY:       rotY,
	}
	if err := t.validate(); err != nil {
		return Transform{}, err
	}
	return t, nil
}

// FromWorldFile builds a Transform from world-file coefficients in their
// on-disk line order: pixel size X (A), rotation Y (D), rotation X (B),
// pixel size Y (E, typically negative), origin X (C), origin Y (F).
func FromWorldFile(a, d, b, e, c, f float64) (Transform, error) {
	return FromAffine(c, a, b, f, d, e)
}

// ParseWorldFile reads the six lines of a world-file sidecar (.jgw/.pgw).
func ParseWorldFile(r io.Reader) (Transform, error) {
	scanner := bufio.NewScanner(r)
	coeffs := make([]float64, 0, 6)
	for scanner.Scan() && len(coeffs) < 6 {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		v, err := strconv.ParseFloat(line, 64)
		if err != nil {
			return Transform{}, errors.NewInvalidTransformError(
				fmt.Sprintf("world file line %d is not a number: %q", len(coeffs)+1, line), err)
		}
		coeffs = append(coeffs, v)
	}
	if err := scanner.Err(); err != nil {
		return Transform{}, errors.NewInvalidTransformError("failed to read world file", err)
	}
	if len(coeffs) < 6 {
		return Transform{}, errors.NewInvalidTransformError(
			fmt.Sprintf("world file has %d coefficients, want 6", len(coeffs)), nil)
	}
	return FromWorldFile(coeffs[0], coeffs[1], coeffs[2], coeffs[3], coeffs[4], coeffs[5])
}

// ToGeo maps a pixel position to geographic coordinates. Pure affine; safe
// for concurrent use.
func (t Transform) ToGeo(px, py float64) (lon, lat float64) {
	lon = t.OriginX + px*t.PixelSizeX + py*t.RotX
	lat = t.OriginY + px*t.RotY + py*t.PixelSizeY
	return lon, lat
}

func (t Transform) validate() error {
	if t.PixelSizeX == 0 || t.PixelSizeY == 0 {
		return errors.NewInvalidTransformError(
			fmt.Sprintf("pixel size terms must be non-zero, got (%v, %v)", t.PixelSizeX, t.PixelSizeY), nil)
	}
	// The mapping must stay invertible even with rotation terms present.
	if t.PixelSizeX*t.PixelSizeY-t.RotX*t.RotY == 0 {
		return errors.NewInvalidTransformError("affine matrix is singular", nil)
	}
	return nil
}
