package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Record is one image's detections in the JSON output format: one
// quadrilateral per detection, corners clockwise from top-left, each corner
// a [lon,lat] pair, confidences index-aligned with coordinates.
type Record struct {
	Image       string         `json:"image"`
	Coordinates [][][2]float64 `json:"coordinates"`
	Confidence  []float64      `json:"confidence"`
}

// WriteJSON writes all results as a single output.json in dir.
func WriteJSON(dir string, results []DetectionResult) error {
	records := make([]Record, 0, len(results))
	for _, res := range results {
		rec := Record{Image: res.ImageID}
		for _, box := range res.Boxes {
			quad := make([][2]float64, 0, 4)
			for _, c := range box.Corners {
				quad = append(quad, [2]float64{c.X, c.Y})
			}
			rec.Coordinates = append(rec.Coordinates, quad)
			rec.Confidence = append(rec.Confidence, box.Confidence)
		}
		records = append(records, rec)
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output records: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, "output.json"), data, 0o644)
}

// WriteTXT writes one text file per source image, one detection per line:
// four "lon,lat" corner pairs followed by the confidence. Lossless encoding
// of the same DetectionResult sequence as WriteJSON.
func WriteTXT(dir string, results []DetectionResult) error {
	for _, res := range results {
		path := filepath.Join(dir, res.ImageID+".txt")
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", path, err)
		}
		for _, box := range res.Boxes {
			line := ""
			for i, c := range box.Corners {
				if i > 0 {
					line += " "
				}
				line += fmt.Sprintf("%g,%g", c.X, c.Y)
			}
			line += fmt.Sprintf(" %g\n", box.Confidence)
			if _, err := f.WriteString(line); err != nil {
				f.Close()
				return fmt.Errorf("failed to write %s: %w", path, err)
			}
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	return nil
}
