package preview

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/landforge/server/internal/config"
	"github.com/landforge/server/internal/record"
)

func previewConfig(baseURL string, retries int) *config.Config {
	return &config.Config{
		Preview: config.PreviewConfig{
			BaseURL:    baseURL,
			Timeout:    5 * time.Second,
			RetryCount: retries,
		},
	}
}

func sampleInfo() *record.LandblockInfo {
	return &record.LandblockInfo{
		Tile:     0x0102,
		NumCells: 2,
		Buildings: []record.BuildingInfo{
			{ModelID: 0x02001234, Frame: record.Frame{
				Origin:      mgl32.Vec3{36, 156, 0},
				Orientation: mgl32.QuatIdent(),
			}},
		},
		Objects: []record.Stab{
			{ModelID: 0x01000111, Frame: record.Frame{
				Origin:      mgl32.Vec3{10, 20, 0},
				Orientation: mgl32.QuatIdent(),
			}},
		},
	}
}

func TestNewClient(t *testing.T) {
	client := NewClient(previewConfig("http://localhost:8081", 3))
	if client == nil {
		t.Fatal("NewClient returned nil")
	}

	if client.baseURL != "http://localhost:8081" {
		t.Errorf("Expected baseURL http://localhost:8081, got %s", client.baseURL)
	}

	if client.retryCount != 3 {
		t.Errorf("Expected retryCount 3, got %d", client.retryCount)
	}
}

func TestClient_HealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("Expected path /health, got %s", r.URL.Path)
		}

		response := HealthResponse{
			Status:  "ok",
			Service: "landforge-preview-service",
			Version: "0.1.0",
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}))
	defer server.Close()

	client := NewClient(previewConfig(server.URL, 0))
	if err := client.HealthCheck(); err != nil {
		t.Errorf("HealthCheck failed: %v", err)
	}
}

func TestClient_HealthCheck_Unhealthy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		response := HealthResponse{
			Status:  "error",
			Service: "landforge-preview-service",
			Version: "0.1.0",
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}))
	defer server.Close()

	client := NewClient(previewConfig(server.URL, 0))
	if err := client.HealthCheck(); err == nil {
		t.Error("Expected error for unhealthy service, got nil")
	}
}

func TestClient_RenderLandblock(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/render" {
			t.Errorf("Expected path /api/v1/render, got %s", r.URL.Path)
		}

		if r.Method != "POST" {
			t.Errorf("Expected method POST, got %s", r.Method)
		}

		var req renderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		if req.Tile != "0102" {
			t.Errorf("Expected tile 0102, got %s", req.Tile)
		}
		if len(req.Buildings) != 1 || req.Buildings[0].ModelID != "02001234" {
			t.Errorf("Unexpected buildings payload: %+v", req.Buildings)
		}

		response := renderResponse{
			Success: true,
			Job: Job{
				JobID:  "job-42",
				Status: "queued",
			},
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(response)
	}))
	defer server.Close()

	client := NewClient(previewConfig(server.URL, 0))
	job, err := client.RenderLandblock(0x0102, sampleInfo())
	if err != nil {
		t.Fatalf("RenderLandblock failed: %v", err)
	}

	if job.JobID != "job-42" {
		t.Errorf("Expected job ID job-42, got %s", job.JobID)
	}

	if job.Status != "queued" {
		t.Errorf("Expected status queued, got %s", job.Status)
	}
}

func TestClient_RenderLandblock_Retry(t *testing.T) {
	attempts := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		response := renderResponse{
			Success: true,
			Job:     Job{JobID: "job-7", Status: "queued"},
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}))
	defer server.Close()

	client := NewClient(previewConfig(server.URL, 3))
	job, err := client.RenderLandblock(0x0102, sampleInfo())
	if err != nil {
		t.Fatalf("RenderLandblock failed after retries: %v", err)
	}

	if job.JobID != "job-7" {
		t.Errorf("Expected job ID job-7, got %s", job.JobID)
	}

	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestClient_RenderLandblock_ExhaustedRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(previewConfig(server.URL, 1))
	if _, err := client.RenderLandblock(0x0102, sampleInfo()); err == nil {
		t.Error("Expected error after exhausting retries, got nil")
	}
}
