package api

import (
	"net/http"
	"time"
)

// ServerVersion is reported by the health endpoint.
const ServerVersion = "1.0.0"

// HealthHandlers serves the unauthenticated liveness endpoint.
type HealthHandlers struct {
	driver string
	start  time.Time
}

// NewHealthHandlers creates a health handler reporting the active store
// driver and the server start time.
func NewHealthHandlers(driver string, start time.Time) *HealthHandlers {
	return &HealthHandlers{driver: driver, start: start}
}

// GetHealth handles GET /api/health
func (h *HealthHandlers) GetHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"version":        ServerVersion,
		"store_driver":   h.driver,
		"uptime_seconds": int64(time.Since(h.start).Seconds()),
	})
}

// SetupHealthRoutes registers the health endpoint (no auth, no rate limit).
func SetupHealthRoutes(mux *http.ServeMux, deps *Deps) {
	handlers := NewHealthHandlers(deps.Config.Store.Driver, deps.StartTime)
	mux.HandleFunc("/api/health", handlers.GetHealth)
}
