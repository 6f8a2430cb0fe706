package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/landforge/server/internal/auth"
	"github.com/landforge/server/internal/blueprint"
	"github.com/landforge/server/internal/compression"
	"github.com/landforge/server/internal/landblock"
	"github.com/landforge/server/internal/performance"
	"github.com/landforge/server/internal/preview"
	"github.com/landforge/server/internal/reconcile"
	"github.com/landforge/server/internal/record"
)

// LandblockHandlers serves tile-level record operations: inspection, the
// reconciling save, single-cell reads, compressed export, and preview jobs.
type LandblockHandlers struct {
	store      record.Store
	reconciler *reconcile.Reconciler
	claims     ClaimGate
	preview    *preview.Client
	region     *landblock.Region
	format     string
	profiler   *performance.Profiler
}

// NewLandblockHandlers creates a new LandblockHandlers instance.
func NewLandblockHandlers(deps *Deps) *LandblockHandlers {
	return &LandblockHandlers{
		store:      deps.Store,
		reconciler: deps.Reconciler,
		claims:     deps.Claims,
		preview:    deps.Preview,
		region:     deps.Region,
		format:     deps.Config.Compression.Format,
		profiler:   deps.Profiler,
	}
}

func (h *LandblockHandlers) parseTile(w http.ResponseWriter, s string) (uint16, bool) {
	tile, err := parseTileID(s)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return 0, false
	}
	if h.region != nil && !h.region.TileValid(tile) {
		respondWithError(w, http.StatusBadRequest, "tile is outside the region extent")
		return 0, false
	}
	return tile, true
}

// GetLandblock handles GET /api/landblocks/{tile}
func (h *LandblockHandlers) GetLandblock(w http.ResponseWriter, r *http.Request, tileSeg string) {
	tile, ok := h.parseTile(w, tileSeg)
	if !ok {
		return
	}

	info, err := h.store.LandblockInfo(tile)
	if err != nil {
		if errors.Is(err, record.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, "landblock has no metadata record")
			return
		}
		log.Printf("GetLandblock: failed to load tile 0x%04X: %v", tile, err)
		respondWithError(w, http.StatusInternalServerError, "Failed to load landblock")
		return
	}

	writeJSON(w, http.StatusOK, toLandblockJSON(info))
}

// saveObjectsRequest is the PUT body: the full edited object list of a tile.
type saveObjectsRequest struct {
	Objects []staticObjectJSON `json:"objects"`
}

// saveObjectsResponse reports what the reconciler did.
type saveObjectsResponse struct {
	Tile      string          `json:"tile"`
	NumCells  uint32          `json:"num_cells"`
	Buildings int             `json:"buildings"`
	Objects   int             `json:"objects"`
	Stats     reconcile.Stats `json:"stats"`
}

// SaveObjects handles PUT /api/landblocks/{tile}/objects. The edited list
// replaces the tile's content through the reconciler. Non-admin editors need
// an active claim covering the tile.
func (h *LandblockHandlers) SaveObjects(w http.ResponseWriter, r *http.Request, tileSeg string) {
	userID, ok := auth.GetUserID(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	tile, ok := h.parseTile(w, tileSeg)
	if !ok {
		return
	}

	if h.claims != nil && !auth.IsAdmin(r) {
		covered, err := h.claims.ClaimCovering(tile, userID)
		if err != nil {
			log.Printf("SaveObjects: claim check for tile 0x%04X failed: %v", tile, err)
			respondWithError(w, http.StatusInternalServerError, "Failed to check tile claim")
			return
		}
		if !covered {
			respondWithError(w, http.StatusConflict, "tile is not covered by one of your claims")
			return
		}
	}

	var req saveObjectsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	edited := make([]record.StaticObject, 0, len(req.Objects))
	for _, obj := range req.Objects {
		so, err := obj.toStaticObject()
		if err != nil {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		edited = append(edited, so)
	}

	result, err := h.reconciler.ReconcileTile(tile, edited)
	if err != nil {
		// A failed save may leave earlier cell writes behind; the client
		// retries the whole tile.
		log.Printf("SaveObjects: reconciliation of tile 0x%04X aborted: %v", tile, err)
		respondWithError(w, http.StatusBadGateway, "Save aborted: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, saveObjectsResponse{
		Tile:      formatTile(result.Tile),
		NumCells:  result.CellCount,
		Buildings: len(result.Buildings),
		Objects:   len(result.Objects),
		Stats:     result.Stats,
	})
}

// GetCell handles GET /api/landblocks/{tile}/cells/{local}
func (h *LandblockHandlers) GetCell(w http.ResponseWriter, r *http.Request, tileSeg, localSeg string) {
	tile, ok := h.parseTile(w, tileSeg)
	if !ok {
		return
	}
	local, err := parseLocalID(localSeg)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !landblock.IsEnvCellLocal(local) {
		respondWithError(w, http.StatusBadRequest, "local id is not an interior cell")
		return
	}

	cell, err := h.store.EnvCell(landblock.MakeRecordID(tile, local))
	if err != nil {
		if errors.Is(err, record.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, "cell record not found")
			return
		}
		log.Printf("GetCell: failed to load cell %04X:%04X: %v", tile, local, err)
		respondWithError(w, http.StatusInternalServerError, "Failed to load cell")
		return
	}

	writeJSON(w, http.StatusOK, toEnvCellJSON(cell))
}

// exportRecord is one encoded record in an export bundle.
type exportRecord struct {
	ID      string `json:"id"`
	Payload string `json:"payload"` // base64 of the binary record encoding
}

// exportBundle is the uncompressed form of a tile export.
type exportBundle struct {
	Tile    string         `json:"tile"`
	Records []exportRecord `json:"records"`
}

// Export handles GET /api/landblocks/{tile}/export. The bundle holds the
// tile's metadata record plus every interior cell reachable from its
// buildings, each in its binary encoding, compressed as one payload.
func (h *LandblockHandlers) Export(w http.ResponseWriter, r *http.Request, tileSeg string) {
	tile, ok := h.parseTile(w, tileSeg)
	if !ok {
		return
	}

	if h.profiler != nil {
		op := h.profiler.Start("tile_export")
		defer op.End()
	}

	info, err := h.store.LandblockInfo(tile)
	if err != nil {
		if errors.Is(err, record.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, "landblock has no metadata record")
			return
		}
		log.Printf("Export: failed to load tile 0x%04X: %v", tile, err)
		respondWithError(w, http.StatusInternalServerError, "Failed to load landblock")
		return
	}

	infoPayload, err := record.EncodeLandblockInfo(info)
	if err != nil {
		log.Printf("Export: failed to encode tile 0x%04X metadata: %v", tile, err)
		respondWithError(w, http.StatusInternalServerError, "Failed to encode landblock")
		return
	}

	bundle := exportBundle{
		Tile: formatTile(tile),
		Records: []exportRecord{{
			ID:      formatModel(landblock.InfoID(tile)),
			Payload: base64.StdEncoding.EncodeToString(infoPayload),
		}},
	}

	for i := range info.Buildings {
		owned := blueprint.CollectOwnedCells(h.store, &info.Buildings[i], tile, nil)
		for local := range owned {
			id := landblock.MakeRecordID(tile, local)
			cell, err := h.store.EnvCell(id)
			if err != nil {
				continue
			}
			payload, err := record.EncodeEnvCell(cell)
			if err != nil {
				log.Printf("Export: failed to encode cell 0x%08X: %v", id, err)
				continue
			}
			bundle.Records = append(bundle.Records, exportRecord{
				ID:      formatModel(id),
				Payload: base64.StdEncoding.EncodeToString(payload),
			})
		}
	}

	raw, err := json.Marshal(bundle)
	if err != nil {
		log.Printf("Export: failed to marshal bundle for tile 0x%04X: %v", tile, err)
		respondWithError(w, http.StatusInternalServerError, "Failed to build export bundle")
		return
	}

	compressed, err := compression.Compress(raw, h.format)
	if err != nil {
		log.Printf("Export: failed to compress bundle for tile 0x%04X: %v", tile, err)
		respondWithError(w, http.StatusInternalServerError, "Failed to compress export bundle")
		return
	}

	writeJSON(w, http.StatusOK, compressed)
}

// Preview handles POST /api/landblocks/{tile}/preview: submits the tile to
// the external render service and answers 202 with the job descriptor.
func (h *LandblockHandlers) Preview(w http.ResponseWriter, r *http.Request, tileSeg string) {
	tile, ok := h.parseTile(w, tileSeg)
	if !ok {
		return
	}
	if h.preview == nil {
		respondWithError(w, http.StatusServiceUnavailable, "Preview service is not configured")
		return
	}

	info, err := h.store.LandblockInfo(tile)
	if err != nil {
		if errors.Is(err, record.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, "landblock has no metadata record")
			return
		}
		log.Printf("Preview: failed to load tile 0x%04X: %v", tile, err)
		respondWithError(w, http.StatusInternalServerError, "Failed to load landblock")
		return
	}

	job, err := h.preview.RenderLandblock(tile, info)
	if err != nil {
		log.Printf("Preview: render request for tile 0x%04X failed: %v", tile, err)
		respondWithError(w, http.StatusBadGateway, "Preview service request failed")
		return
	}

	writeJSON(w, http.StatusAccepted, job)
}
