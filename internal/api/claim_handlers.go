package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/landforge/server/internal/auth"
	"github.com/landforge/server/internal/database"
)

// ClaimStore is the tile-claim persistence surface consumed by the API
// layer. database.ClaimStorage implements it; tests substitute an in-memory
// fake.
type ClaimStore interface {
	ClaimGate
	CreateClaim(accountID int64, x0, y0, x1, y1 int, expiresAt *time.Time) (*database.TileClaim, error)
	ListClaims(accountID int64) ([]*database.TileClaim, error)
	DeleteClaim(id, accountID int64) (bool, error)
}

// ClaimHandlers manages editor tile-range claims.
type ClaimHandlers struct {
	claims    ClaimStore
	validator *validator.Validate
}

// NewClaimHandlers creates a new ClaimHandlers instance.
func NewClaimHandlers(claims ClaimStore) *ClaimHandlers {
	return &ClaimHandlers{
		claims:    claims,
		validator: validator.New(),
	}
}

type createClaimRequest struct {
	X0       int `json:"x0" validate:"min=0,max=255"`
	Y0       int `json:"y0" validate:"min=0,max=255"`
	X1       int `json:"x1" validate:"min=0,max=255"`
	Y1       int `json:"y1" validate:"min=0,max=255"`
	TTLHours int `json:"ttl_hours,omitempty" validate:"min=0,max=720"`
}

type claimJSON struct {
	ID        int64      `json:"id"`
	AccountID int64      `json:"account_id"`
	X0        int        `json:"x0"`
	Y0        int        `json:"y0"`
	X1        int        `json:"x1"`
	Y1        int        `json:"y1"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func toClaimJSON(c *database.TileClaim) claimJSON {
	out := claimJSON{
		ID:        c.ID,
		AccountID: c.AccountID,
		X0:        c.X0,
		Y0:        c.Y0,
		X1:        c.X1,
		Y1:        c.Y1,
		CreatedAt: c.CreatedAt,
	}
	if c.ExpiresAt.Valid {
		t := c.ExpiresAt.Time
		out.ExpiresAt = &t
	}
	return out
}

// CreateClaim handles POST /api/claims
func (h *ClaimHandlers) CreateClaim(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserID(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req createClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "claim coordinates must be tile coordinates in [0,255]")
		return
	}

	var expiresAt *time.Time
	if req.TTLHours > 0 {
		t := time.Now().Add(time.Duration(req.TTLHours) * time.Hour)
		expiresAt = &t
	}

	claim, err := h.claims.CreateClaim(userID, req.X0, req.Y0, req.X1, req.Y1, expiresAt)
	if err != nil {
		var conflict *database.ClaimConflictError
		if errors.As(err, &conflict) {
			writeJSON(w, http.StatusConflict, map[string]interface{}{
				"error":        "claim_conflict",
				"message":      conflict.Error(),
				"conflict_ids": conflict.ConflictIDs,
			})
			return
		}
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, toClaimJSON(claim))
}

// ListClaims handles GET /api/claims (the caller's unexpired claims).
func (h *ClaimHandlers) ListClaims(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserID(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	claims, err := h.claims.ListClaims(userID)
	if err != nil {
		log.Printf("ListClaims: %v", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to list claims")
		return
	}

	out := make([]claimJSON, 0, len(claims))
	for _, c := range claims {
		out = append(out, toClaimJSON(c))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"claims": out,
		"count":  len(out),
	})
}

// DeleteClaim handles DELETE /api/claims/{id}
func (h *ClaimHandlers) DeleteClaim(w http.ResponseWriter, r *http.Request, idSeg string) {
	userID, ok := auth.GetUserID(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	id, err := strconv.ParseInt(idSeg, 10, 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid claim id")
		return
	}

	deleted, err := h.claims.DeleteClaim(id, userID)
	if err != nil {
		log.Printf("DeleteClaim: %v", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to delete claim")
		return
	}
	if !deleted {
		respondWithError(w, http.StatusNotFound, "claim not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}
