package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/landforge/server/internal/compression"
	"github.com/landforge/server/internal/landblock"
	"github.com/landforge/server/internal/preview"
	"github.com/landforge/server/internal/record"
	"github.com/landforge/server/internal/testutil"
)

func TestGetLandblockRequiresAuth(t *testing.T) {
	deps, _, _ := newTestDeps()
	helper, _, _ := newTestRouter(t, deps)

	rr := helper.MakeRequest("GET", "/api/landblocks/0102", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}
}

func TestGetLandblockNotFound(t *testing.T) {
	deps, _, _ := newTestDeps()
	helper, editorToken, _ := newTestRouter(t, deps)

	rr := helper.MakeAuthenticatedRequest("GET", "/api/landblocks/0102", nil, editorToken)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unseeded tile, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestGetLandblockBadTileID(t *testing.T) {
	deps, _, _ := newTestDeps()
	helper, editorToken, _ := newTestRouter(t, deps)

	rr := helper.MakeAuthenticatedRequest("GET", "/api/landblocks/zzzz", nil, editorToken)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed tile id, got %d", rr.Code)
	}
}

func TestGetLandblock(t *testing.T) {
	deps, store, _ := newTestDeps()
	seedDonor(t, store)
	helper, editorToken, _ := newTestRouter(t, deps)

	rr := helper.MakeAuthenticatedRequest("GET", "/api/landblocks/0102", nil, editorToken)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp landblockJSON
	if err := testutil.ParseJSONResponse(&resp, rr.Body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Tile != "0102" {
		t.Errorf("expected tile 0102, got %s", resp.Tile)
	}
	if resp.NumCells != 2 {
		t.Errorf("expected 2 cells, got %d", resp.NumCells)
	}
	if len(resp.Buildings) != 1 {
		t.Fatalf("expected 1 building, got %d", len(resp.Buildings))
	}
	if resp.Buildings[0].ModelID != "02001234" {
		t.Errorf("expected building model 02001234, got %s", resp.Buildings[0].ModelID)
	}
}

func TestGetCell(t *testing.T) {
	deps, store, _ := newTestDeps()
	seedDonor(t, store)
	helper, editorToken, _ := newTestRouter(t, deps)

	rr := helper.MakeAuthenticatedRequest("GET", "/api/landblocks/0102/cells/0101", nil, editorToken)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp envCellJSON
	if err := testutil.ParseJSONResponse(&resp, rr.Body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.ID != "01020101" {
		t.Errorf("expected cell id 01020101, got %s", resp.ID)
	}
	if resp.EnvironmentID != 0x0223 {
		t.Errorf("expected environment 0x0223, got 0x%04X", resp.EnvironmentID)
	}
	if len(resp.VisibleCells) != 2 || resp.VisibleCells[0] != "0102" {
		t.Errorf("unexpected visible cell list: %v", resp.VisibleCells)
	}
}

func TestGetCellRejectsNonInteriorLocal(t *testing.T) {
	deps, store, _ := newTestDeps()
	seedDonor(t, store)
	helper, editorToken, _ := newTestRouter(t, deps)

	// 0x0014 is a land cell local, not an interior cell.
	rr := helper.MakeAuthenticatedRequest("GET", "/api/landblocks/0102/cells/0014", nil, editorToken)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for land cell local, got %d", rr.Code)
	}
}

func TestGetCellNotFound(t *testing.T) {
	deps, store, _ := newTestDeps()
	seedDonor(t, store)
	helper, editorToken, _ := newTestRouter(t, deps)

	rr := helper.MakeAuthenticatedRequest("GET", "/api/landblocks/0102/cells/0107", nil, editorToken)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing cell, got %d", rr.Code)
	}
}

// donorObjectList returns the seeded donor building in world space: tile
// (0x01,0x02) has its origin at (192, 384), the building sits at local
// (36, 156, 0).
func donorObjectList() []staticObjectJSON {
	return []staticObjectJSON{
		{
			ModelID:     "02001234",
			IsSetup:     true,
			Origin:      [3]float32{228, 540, 0},
			Orientation: [4]float32{1, 0, 0, 0},
		},
	}
}

func TestSaveObjectsDeniedWithoutClaim(t *testing.T) {
	deps, store, _ := newTestDeps()
	seedDonor(t, store)
	helper, editorToken, _ := newTestRouter(t, deps)

	body := saveObjectsRequest{Objects: donorObjectList()}
	rr := helper.MakeAuthenticatedRequest("PUT", "/api/landblocks/0102/objects", body, editorToken)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 without a covering claim, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestSaveObjectsWithClaim(t *testing.T) {
	deps, store, claims := newTestDeps()
	seedDonor(t, store)
	if _, err := claims.CreateClaim(1, 0, 0, 10, 10, nil); err != nil {
		t.Fatalf("failed to seed claim: %v", err)
	}
	helper, editorToken, _ := newTestRouter(t, deps)

	body := saveObjectsRequest{Objects: donorObjectList()}
	rr := helper.MakeAuthenticatedRequest("PUT", "/api/landblocks/0102/objects", body, editorToken)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp saveObjectsResponse
	if err := testutil.ParseJSONResponse(&resp, rr.Body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Tile != "0102" {
		t.Errorf("expected tile 0102, got %s", resp.Tile)
	}
	if resp.Buildings != 1 {
		t.Errorf("expected 1 building to survive, got %d", resp.Buildings)
	}
	if resp.Stats.Matched != 1 {
		t.Errorf("expected 1 matched building, got %+v", resp.Stats)
	}
	if resp.NumCells != 2 {
		t.Errorf("expected cell count 2, got %d", resp.NumCells)
	}
}

func TestSaveObjectsAdminBypassesClaims(t *testing.T) {
	deps, store, _ := newTestDeps()
	seedDonor(t, store)
	helper, _, adminToken := newTestRouter(t, deps)

	body := saveObjectsRequest{Objects: donorObjectList()}
	rr := helper.MakeAuthenticatedRequest("PUT", "/api/landblocks/0102/objects", body, adminToken)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected admin save to succeed without claim, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestSaveObjectsAbortsOnStoreFailure(t *testing.T) {
	deps, store, claims := newTestDeps()
	tile := seedDonor(t, store)
	if _, err := claims.CreateClaim(1, 0, 0, 10, 10, nil); err != nil {
		t.Fatalf("failed to seed claim: %v", err)
	}
	helper, editorToken, _ := newTestRouter(t, deps)

	store.FailSaves(errors.New("disk full"))

	// Delete the building so the reconciler has cell writes to perform.
	body := saveObjectsRequest{Objects: nil}
	rr := helper.MakeAuthenticatedRequest("PUT", "/api/landblocks/0102/objects", body, editorToken)
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 on aborted save, got %d: %s", rr.Code, rr.Body.String())
	}

	store.FailSaves(nil)
	info, err := store.LandblockInfo(tile)
	if err != nil {
		t.Fatalf("failed to reload info: %v", err)
	}
	// The metadata record was never rewritten.
	if len(info.Buildings) != 1 {
		t.Errorf("expected metadata record untouched after abort, got %d buildings", len(info.Buildings))
	}
}

func TestSaveObjectsRejectsBadModelID(t *testing.T) {
	deps, store, _ := newTestDeps()
	seedDonor(t, store)
	helper, _, adminToken := newTestRouter(t, deps)

	body := saveObjectsRequest{Objects: []staticObjectJSON{{ModelID: "not-hex"}}}
	rr := helper.MakeAuthenticatedRequest("PUT", "/api/landblocks/0102/objects", body, adminToken)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed model id, got %d", rr.Code)
	}
}

func TestExportRoundTrip(t *testing.T) {
	deps, store, _ := newTestDeps()
	tile := seedDonor(t, store)
	helper, editorToken, _ := newTestRouter(t, deps)

	rr := helper.MakeAuthenticatedRequest("GET", "/api/landblocks/0102/export", nil, editorToken)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var payload compression.CompressedPayload
	if err := testutil.ParseJSONResponse(&payload, rr.Body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if payload.Format != "zstd" {
		t.Errorf("expected zstd payload, got %s", payload.Format)
	}

	raw, err := compression.Decompress(&payload)
	if err != nil {
		t.Fatalf("failed to decompress bundle: %v", err)
	}

	var bundle exportBundle
	if err := json.Unmarshal(raw, &bundle); err != nil {
		t.Fatalf("failed to unmarshal bundle: %v", err)
	}
	if bundle.Tile != "0102" {
		t.Errorf("expected tile 0102, got %s", bundle.Tile)
	}
	// Metadata record plus the building's two interior cells.
	if len(bundle.Records) != 3 {
		t.Fatalf("expected 3 records in bundle, got %d", len(bundle.Records))
	}
	if bundle.Records[0].ID != formatModel(landblock.InfoID(tile)) {
		t.Errorf("expected first record to be the metadata record, got %s", bundle.Records[0].ID)
	}

	infoPayload, err := base64.StdEncoding.DecodeString(bundle.Records[0].Payload)
	if err != nil {
		t.Fatalf("failed to decode record payload: %v", err)
	}
	info, err := record.DecodeLandblockInfo(infoPayload)
	if err != nil {
		t.Fatalf("failed to decode metadata record: %v", err)
	}
	if info.NumCells != 2 || len(info.Buildings) != 1 {
		t.Errorf("unexpected exported metadata: cells=%d buildings=%d", info.NumCells, len(info.Buildings))
	}
}

func TestPreviewUnavailableWithoutClient(t *testing.T) {
	deps, store, _ := newTestDeps()
	seedDonor(t, store)
	helper, editorToken, _ := newTestRouter(t, deps)

	rr := helper.MakeAuthenticatedRequest("POST", "/api/landblocks/0102/preview", nil, editorToken)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without a preview client, got %d", rr.Code)
	}
}

func TestPreviewSubmitsRenderJob(t *testing.T) {
	renderService := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/render" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"job":{"job_id":"job-42","status":"queued"}}`))
	}))
	defer renderService.Close()

	deps, store, _ := newTestDeps()
	seedDonor(t, store)
	cfg := deps.Config
	cfg.Preview.BaseURL = renderService.URL
	deps.Preview = preview.NewClient(cfg)
	helper, editorToken, _ := newTestRouter(t, deps)

	rr := helper.MakeAuthenticatedRequest("POST", "/api/landblocks/0102/preview", nil, editorToken)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rr.Code, rr.Body.String())
	}

	var job preview.Job
	if err := testutil.ParseJSONResponse(&job, rr.Body); err != nil {
		t.Fatalf("failed to parse job: %v", err)
	}
	if job.JobID != "job-42" || job.Status != "queued" {
		t.Errorf("unexpected job descriptor: %+v", job)
	}
}
