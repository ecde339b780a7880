package raster

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/aerovision/detect-worker/internal/geo"
)

// worldFileExt maps an image extension to its world-file sidecar extension.
var worldFileExt = map[string]string{
	".png":  ".pgw",
	".jpg":  ".jgw",
	".jpeg": ".jgw",
}

// Load decodes a raster image and its world-file sidecar into a RasterImage.
// The image id is the file's base name without extension. A missing or
// degenerate sidecar is job-fatal for the image.
func Load(path string) (*RasterImage, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to decode raster %s: %w", path, err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	sidecar, ok := worldFileExt[ext]
	if !ok {
		return nil, fmt.Errorf("unsupported raster format %q for %s", ext, path)
	}

	base := strings.TrimSuffix(path, filepath.Ext(path))
	wf, err := os.Open(base + sidecar)
	if err != nil {
		// Fall back to .jgw: some providers ship it for every format.
		wf, err = os.Open(base + ".jgw")
		if err != nil {
			return nil, fmt.Errorf("no world file for raster %s: %w", path, err)
		}
	}
	defer wf.Close()

	transform, err := geo.ParseWorldFile(wf)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	return &RasterImage{
		ID:        filepath.Base(base),
		Width:     bounds.Dx(),
		Height:    bounds.Dy(),
		Pixels:    img,
		Transform: transform,
	}, nil
}

// LoadDir loads every supported raster in a directory (non-recursive).
func LoadDir(dir string) ([]*RasterImage, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read input directory %s: %w", dir, err)
	}

	var images []*RasterImage
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if _, ok := worldFileExt[ext]; !ok {
			continue
		}
		img, err := Load(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}

	if len(images) == 0 {
		return nil, fmt.Errorf("no rasters found in %s", dir)
	}
	return images, nil
}
