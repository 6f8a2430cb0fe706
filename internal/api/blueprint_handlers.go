package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/landforge/server/internal/blueprint"
	"github.com/landforge/server/internal/landblock"
	"github.com/landforge/server/internal/record"
)

// BlueprintHandlers serves the blueprint cache: template inspection and
// direct instantiation of a template into a tile.
type BlueprintHandlers struct {
	blueprints *blueprint.Service
	store      record.Store
	region     *landblock.Region
}

// NewBlueprintHandlers creates a new BlueprintHandlers instance.
func NewBlueprintHandlers(deps *Deps) *BlueprintHandlers {
	return &BlueprintHandlers{
		blueprints: deps.Blueprints,
		store:      deps.Store,
		region:     deps.Region,
	}
}

type blueprintCellJSON struct {
	OriginalCellID      string     `json:"original_cell_id"`
	Flags               uint32     `json:"flags"`
	EnvironmentID       uint16     `json:"environment_id"`
	RelativeOrigin      [3]float32 `json:"relative_origin"`
	RelativeOrientation [4]float32 `json:"relative_orientation"`
	VisibleCells        []string   `json:"visible_cells"`
	StabCount           int        `json:"stab_count"`
}

type blueprintJSON struct {
	ModelID          string               `json:"model_id"`
	NumLeaves        uint32               `json:"num_leaves"`
	DonorOrientation [4]float32           `json:"donor_orientation"`
	PortalTemplates  []buildingPortalJSON `json:"portal_templates"`
	Cells            []blueprintCellJSON  `json:"cells"`
}

func toBlueprintJSON(bp *blueprint.Blueprint) blueprintJSON {
	out := blueprintJSON{
		ModelID:   formatModel(bp.ModelID),
		NumLeaves: bp.NumLeaves,
		DonorOrientation: [4]float32{
			bp.DonorOrientation.W,
			bp.DonorOrientation.V[0],
			bp.DonorOrientation.V[1],
			bp.DonorOrientation.V[2],
		},
		PortalTemplates: make([]buildingPortalJSON, 0, len(bp.PortalTemplates)),
		Cells:           make([]blueprintCellJSON, 0, len(bp.Cells)),
	}
	for _, p := range bp.PortalTemplates {
		out.PortalTemplates = append(out.PortalTemplates, toBuildingPortalJSON(p))
	}
	for _, c := range bp.Cells {
		cell := blueprintCellJSON{
			OriginalCellID: formatLocal(c.OriginalCellID),
			Flags:          c.Flags,
			EnvironmentID:  c.EnvironmentID,
			RelativeOrigin: [3]float32{c.RelativeOrigin.X(), c.RelativeOrigin.Y(), c.RelativeOrigin.Z()},
			RelativeOrientation: [4]float32{
				c.RelativeOrientation.W,
				c.RelativeOrientation.V[0],
				c.RelativeOrientation.V[1],
				c.RelativeOrientation.V[2],
			},
			VisibleCells: make([]string, 0, len(c.VisibleCells)),
			StabCount:    len(c.Stabs),
		}
		for _, id := range c.VisibleCells {
			cell.VisibleCells = append(cell.VisibleCells, formatLocal(id))
		}
		out.Cells = append(out.Cells, cell)
	}
	return out
}

// GetBlueprint handles GET /api/blueprints/{modelId}. The template is
// extracted from a donor building on first request; a model with no donor
// anywhere in the world is a 404 (and the miss is cached).
func (h *BlueprintHandlers) GetBlueprint(w http.ResponseWriter, r *http.Request, modelSeg string) {
	modelID, err := parseModelID(modelSeg)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	bp, ok := h.blueprints.Blueprint(modelID)
	if !ok {
		respondWithError(w, http.StatusNotFound, "no donor building found for model")
		return
	}

	writeJSON(w, http.StatusOK, toBlueprintJSON(bp))
}

type instantiateRequest struct {
	Tile        string     `json:"tile"`
	Origin      [3]float32 `json:"origin"` // tile-local
	Orientation [4]float32 `json:"orientation"`
}

type instantiateResponse struct {
	Building     buildingJSON `json:"building"`
	CellsCreated int          `json:"cells_created"`
	NumCells     uint32       `json:"num_cells"`
}

// Instantiate handles POST /api/blueprints/{modelId}/instantiate: stamps the
// template into a tile at a local frame and appends the new building to the
// tile's metadata record.
func (h *BlueprintHandlers) Instantiate(w http.ResponseWriter, r *http.Request, modelSeg string) {
	modelID, err := parseModelID(modelSeg)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req instantiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	tile, err := parseTileID(req.Tile)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if h.region != nil && !h.region.TileValid(tile) {
		respondWithError(w, http.StatusBadRequest, "tile is outside the region extent")
		return
	}

	bp, ok := h.blueprints.Blueprint(modelID)
	if !ok {
		respondWithError(w, http.StatusNotFound, "no donor building found for model")
		return
	}

	info, err := h.store.LandblockInfo(tile)
	if err != nil {
		if !errors.Is(err, record.ErrNotFound) {
			log.Printf("Instantiate: failed to load tile 0x%04X: %v", tile, err)
			respondWithError(w, http.StatusInternalServerError, "Failed to load landblock")
			return
		}
		info = &record.LandblockInfo{Tile: tile}
	}

	frame := frameJSON{Origin: req.Origin, Orientation: req.Orientation}.toFrame()
	building, created, err := h.blueprints.Instantiate(bp, frame.Origin, frame.Orientation, tile, info.NumCells)
	if err != nil {
		log.Printf("Instantiate: model %08X on tile 0x%04X aborted: %v", modelID, tile, err)
		respondWithError(w, http.StatusBadGateway, "Instantiation aborted: "+err.Error())
		return
	}

	info.Buildings = append(info.Buildings, *building)
	info.NumCells += uint32(created)
	if err := h.store.SaveLandblockInfo(info); err != nil {
		log.Printf("Instantiate: failed to save tile 0x%04X metadata: %v", tile, err)
		respondWithError(w, http.StatusBadGateway, "Failed to save landblock metadata")
		return
	}

	writeJSON(w, http.StatusCreated, instantiateResponse{
		Building:     toBuildingJSON(*building),
		CellsCreated: created,
		NumCells:     info.NumCells,
	})
}
