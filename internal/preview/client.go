// Package preview talks to the external render-preview service that turns a
// tile's records into a viewable snapshot image. The service is optional;
// callers treat any error here as "no preview available".
package preview

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/landforge/server/internal/config"
	"github.com/landforge/server/internal/record"
)

// Client handles communication with the render-preview service
type Client struct {
	baseURL    string
	timeout    time.Duration
	retryCount int
	client     *http.Client
}

// NewClient creates a preview service client from the server configuration
func NewClient(cfg *config.Config) *Client {
	return &Client{
		baseURL:    cfg.Preview.BaseURL,
		timeout:    cfg.Preview.Timeout,
		retryCount: cfg.Preview.RetryCount,
		client: &http.Client{
			Timeout: cfg.Preview.Timeout,
		},
	}
}

// renderRequest is the job submission payload sent to the preview service
type renderRequest struct {
	Tile      string            `json:"tile"`
	CellCount uint32            `json:"cell_count"`
	Buildings []renderBuilding  `json:"buildings"`
	Objects   []renderObject    `json:"objects"`
}

type renderBuilding struct {
	ModelID string     `json:"model_id"`
	Origin  [3]float32 `json:"origin"`
}

type renderObject struct {
	ModelID string     `json:"model_id"`
	Origin  [3]float32 `json:"origin"`
}

// Job describes a render job accepted by the preview service
type Job struct {
	JobID     string  `json:"job_id"`
	Status    string  `json:"status"`
	ResultURL *string `json:"result_url,omitempty"`
	Message   *string `json:"message,omitempty"`
}

type renderResponse struct {
	Success bool    `json:"success"`
	Job     Job     `json:"job"`
	Message *string `json:"message,omitempty"`
}

// HealthResponse represents a health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}

// HealthCheck checks if the preview service is reachable and healthy
func (c *Client) HealthCheck() error {
	url := fmt.Sprintf("%s/health", c.baseURL)

	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("health check request failed: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			log.Printf("Warning: failed to close preview health response body: %v", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status %d", resp.StatusCode)
	}

	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("failed to decode health response: %w", err)
	}

	if health.Status != "ok" {
		return fmt.Errorf("service reported unhealthy status: %s", health.Status)
	}

	return nil
}

// RenderLandblock submits a tile's metadata for rendering and returns the
// accepted job. Failed attempts are retried with exponential backoff.
func (c *Client) RenderLandblock(tile uint16, info *record.LandblockInfo) (*Job, error) {
	url := fmt.Sprintf("%s/api/v1/render", c.baseURL)

	request := renderRequest{
		Tile:      fmt.Sprintf("%04X", tile),
		CellCount: info.NumCells,
		Buildings: make([]renderBuilding, 0, len(info.Buildings)),
		Objects:   make([]renderObject, 0, len(info.Objects)),
	}
	for i := range info.Buildings {
		b := &info.Buildings[i]
		request.Buildings = append(request.Buildings, renderBuilding{
			ModelID: fmt.Sprintf("%08X", b.ModelID),
			Origin:  [3]float32{b.Frame.Origin.X(), b.Frame.Origin.Y(), b.Frame.Origin.Z()},
		})
	}
	for i := range info.Objects {
		o := &info.Objects[i]
		request.Objects = append(request.Objects, renderObject{
			ModelID: fmt.Sprintf("%08X", o.ModelID),
			Origin:  [3]float32{o.Frame.Origin.X(), o.Frame.Origin.Y(), o.Frame.Origin.Z()},
		})
	}

	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.retryCount; attempt++ {
		if attempt > 0 {
			// Exponential backoff: 100ms, 200ms, 400ms
			backoff := time.Duration(100*(1<<uint(attempt-1))) * time.Millisecond
			time.Sleep(backoff)
		}

		req, err := http.NewRequest("POST", url, bytes.NewBuffer(body))
		if err != nil {
			lastErr = fmt.Errorf("failed to create request: %w", err)
			continue
		}

		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		if closeErr := resp.Body.Close(); closeErr != nil {
			log.Printf("Warning: failed to close preview response body: %v", closeErr)
		}
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			continue
		}

		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
			lastErr = fmt.Errorf("render request failed with status %d: %s", resp.StatusCode, string(respBody))
			continue
		}

		var response renderResponse
		if err := json.Unmarshal(respBody, &response); err != nil {
			lastErr = fmt.Errorf("failed to decode response: %w", err)
			continue
		}

		if !response.Success {
			lastErr = fmt.Errorf("render rejected: %v", response.Message)
			continue
		}

		return &response.Job, nil
	}

	return nil, fmt.Errorf("render failed after %d attempts: %w", c.retryCount+1, lastErr)
}
