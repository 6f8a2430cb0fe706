package api

import (
	"net/http"

	"github.com/landforge/server/internal/landblock"
)

// ConfigHandlers serves public configuration data for editor clients.
type ConfigHandlers struct {
	region *landblock.Region
}

// NewConfigHandlers creates a new ConfigHandlers instance.
func NewConfigHandlers(region *landblock.Region) *ConfigHandlers {
	return &ConfigHandlers{region: region}
}

// GetRegion handles GET /api/config/region: the region manifest plus the
// addressing constants a client needs to interpret record ids.
func (h *ConfigHandlers) GetRegion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=3600")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"region": h.region,
		"addressing": map[string]interface{}{
			"land_cell_side":  landblock.LandCellSide,
			"land_cell_grid":  landblock.LandCellGrid,
			"tile_side":       landblock.TileSide,
			"tile_axis_count": landblock.TileAxisCount,
		},
	})
}

// SetupConfigRoutes registers configuration routes (no auth required for
// public config).
func SetupConfigRoutes(mux *http.ServeMux, deps *Deps) {
	handlers := NewConfigHandlers(deps.Region)
	mux.HandleFunc("/api/config/region", handlers.GetRegion)
}
