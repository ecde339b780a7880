/**
 * Remote inference clients.
 *
 * The trained screening/detection models live behind an HTTP inference
 * service; these clients serialize a tile to PNG and post it for scoring.
 * The service owns model selection and versioning - nothing about the model
 * is hardcoded here.
 */

package model

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image/png"
	"io"
	"net/http"
	"time"

	"github.com/aerovision/detect-worker/internal/logging"
	"github.com/aerovision/detect-worker/internal/raster"
)

// inferenceRequest is the wire format shared by both endpoints.
type inferenceRequest struct {
	Image  string `json:"image"` // Base64 encoded PNG
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type scoreResponse struct {
	Score float64 `json:"score"`
}

type detectResponse struct {
	Boxes []RawBox `json:"boxes"`
}

// RemoteScreener scores tiles against an HTTP inference service exposing
// POST /score.
type RemoteScreener struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewRemoteScreener creates a screener client for the given base URL.
func NewRemoteScreener(baseURL string) *RemoteScreener {
	return &RemoteScreener{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logging.NewLogger("screener-client"),
	}
}

// Score implements Screener.
func (c *RemoteScreener) Score(ctx context.Context, tile raster.Tile) (float64, error) {
	var resp scoreResponse
	if err := postTile(ctx, c.httpClient, c.baseURL+"/score", tile, &resp); err != nil {
		return 0, err
	}
	if resp.Score < 0 || resp.Score > 1 {
		return 0, fmt.Errorf("screener returned score %v outside [0,1]", resp.Score)
	}
	return resp.Score, nil
}

// HealthCheck verifies the inference service is reachable.
func (c *RemoteScreener) HealthCheck(ctx context.Context) error {
	return healthCheck(ctx, c.httpClient, c.baseURL)
}

// RemoteDetector runs oriented-box detection against an HTTP inference
// service exposing POST /detect.
type RemoteDetector struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewRemoteDetector creates a detector client for the given base URL.
func NewRemoteDetector(baseURL string) *RemoteDetector {
	return &RemoteDetector{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		logger:     logging.NewLogger("detector-client"),
	}
}

// Detect implements Detector.
func (c *RemoteDetector) Detect(ctx context.Context, tile raster.Tile) ([]RawBox, error) {
	var resp detectResponse
	if err := postTile(ctx, c.httpClient, c.baseURL+"/detect", tile, &resp); err != nil {
		return nil, err
	}
	return resp.Boxes, nil
}

// HealthCheck verifies the inference service is reachable.
func (c *RemoteDetector) HealthCheck(ctx context.Context) error {
	return healthCheck(ctx, c.httpClient, c.baseURL)
}

// postTile encodes the tile as PNG and posts it to the endpoint, decoding
// the JSON response into out.
func postTile(ctx context.Context, client *http.Client, url string, tile raster.Tile, out interface{}) error {
	var buf bytes.Buffer
	if err := png.Encode(&buf, tile.Pixels); err != nil {
		return fmt.Errorf("failed to encode tile (%d,%d): %w", tile.Row, tile.Col, err)
	}

	body, err := json.Marshal(inferenceRequest{
		Image:  base64.StdEncoding.EncodeToString(buf.Bytes()),
		Width:  tile.Width,
		Height: tile.Height,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal inference request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("inference request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("inference service returned %d: %s", resp.StatusCode, string(msg))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode inference response: %w", err)
	}
	return nil
}

func healthCheck(ctx context.Context, client *http.Client, baseURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("inference service unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("inference service unhealthy: status %d", resp.StatusCode)
	}
	return nil
}
