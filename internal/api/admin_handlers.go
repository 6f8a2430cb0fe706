package api

import (
	"log"
	"net/http"

	"github.com/landforge/server/internal/blueprint"
	"github.com/landforge/server/internal/performance"
)

// AdminHandlers serves the admin-only maintenance surface.
type AdminHandlers struct {
	blueprints *blueprint.Service
	profiler   *performance.Profiler
}

// NewAdminHandlers creates a new AdminHandlers instance.
func NewAdminHandlers(deps *Deps) *AdminHandlers {
	return &AdminHandlers{
		blueprints: deps.Blueprints,
		profiler:   deps.Profiler,
	}
}

// ClearCaches handles DELETE /api/admin/caches: drops the blueprint cache
// and the building-model classifier together. Call after loading records
// outside a reconciliation pass.
func (h *AdminHandlers) ClearCaches(w http.ResponseWriter, r *http.Request) {
	before := h.blueprints.CacheStats()
	h.blueprints.ClearCaches()
	log.Printf("Admin: cleared blueprint caches (%d blueprints, %d negative entries, %d building models)",
		before.CachedBlueprints, before.NegativeEntries, before.BuildingModels)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"dropped": before,
		"current": h.blueprints.CacheStats(),
	})
}

// GetMetrics handles GET /api/admin/metrics: the profiler report.
func (h *AdminHandlers) GetMetrics(w http.ResponseWriter, r *http.Request) {
	report, err := h.profiler.JSONReport()
	if err != nil {
		log.Printf("Admin: failed to build metrics report: %v", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to build metrics report")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(report); err != nil {
		log.Printf("Admin: failed to write metrics report: %v", err)
	}
}
