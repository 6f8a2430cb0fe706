package api

import (
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/landforge/server/internal/auth"
	"github.com/landforge/server/internal/blueprint"
	"github.com/landforge/server/internal/config"
	"github.com/landforge/server/internal/database"
	"github.com/landforge/server/internal/landblock"
	"github.com/landforge/server/internal/performance"
	"github.com/landforge/server/internal/reconcile"
	"github.com/landforge/server/internal/record"
	"github.com/landforge/server/internal/streaming"
	"github.com/landforge/server/internal/testutil"
)

const testDonorModel = 0x02001234

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Environment: "test"},
		Store:  config.StoreConfig{Driver: "memory"},
		Auth: config.AuthConfig{
			JWTSecret:         "test_jwt_secret_key_32_bytes_long!!",
			RefreshSecret:     "test_refresh_secret_key_32_bytes_long!!",
			JWTExpiration:     15 * time.Minute,
			RefreshExpiration: 7 * 24 * time.Hour,
			BCryptCost:        10,
		},
		Compression: config.CompressionConfig{Format: "zstd"},
	}
}

// fakeClaimStore is an in-memory ClaimStore for handler tests.
type fakeClaimStore struct {
	mu     sync.Mutex
	nextID int64
	claims []*database.TileClaim
}

func newFakeClaimStore() *fakeClaimStore {
	return &fakeClaimStore{nextID: 1}
}

func (f *fakeClaimStore) CreateClaim(accountID int64, x0, y0, x1, y1 int, expiresAt *time.Time) (*database.TileClaim, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var conflicts []int64
	for _, c := range f.claims {
		if c.AccountID != accountID && c.X0 <= x1 && c.X1 >= x0 && c.Y0 <= y1 && c.Y1 >= y0 {
			conflicts = append(conflicts, c.ID)
		}
	}
	if len(conflicts) > 0 {
		return nil, &database.ClaimConflictError{ConflictIDs: conflicts}
	}

	claim := &database.TileClaim{
		ID:        f.nextID,
		AccountID: accountID,
		X0:        x0,
		Y0:        y0,
		X1:        x1,
		Y1:        y1,
		CreatedAt: time.Now(),
	}
	f.nextID++
	f.claims = append(f.claims, claim)
	return claim, nil
}

func (f *fakeClaimStore) ListClaims(accountID int64) ([]*database.TileClaim, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*database.TileClaim
	for _, c := range f.claims {
		if c.AccountID == accountID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeClaimStore) DeleteClaim(id, accountID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i, c := range f.claims {
		if c.ID == id && c.AccountID == accountID {
			f.claims = append(f.claims[:i], f.claims[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeClaimStore) ClaimCovering(tile uint16, accountID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	tileX, tileY := landblock.TileCoords(tile)
	for _, c := range f.claims {
		if c.AccountID == accountID &&
			c.X0 <= int(tileX) && c.X1 >= int(tileX) &&
			c.Y0 <= int(tileY) && c.Y1 >= int(tileY) {
			return true, nil
		}
	}
	return false, nil
}

// newTestDeps builds a dependency set over a MemStore with the fake claim
// store. The preview client stays nil unless a test injects one.
func newTestDeps() (*Deps, *record.MemStore, *fakeClaimStore) {
	cfg := testConfig()
	store := record.NewMemStore()
	profiler := performance.NewProfiler(true)
	blueprints := blueprint.NewService(store, profiler)
	region := landblock.DefaultRegion()
	claims := newFakeClaimStore()

	deps := &Deps{
		Config:     cfg,
		Store:      store,
		Claims:     claims,
		Blueprints: blueprints,
		Reconciler: reconcile.New(store, blueprints, profiler),
		Region:     region,
		Profiler:   profiler,
		Streaming:  streaming.NewManager(region),
		StartTime:  time.Now(),
	}
	return deps, store, claims
}

// newTestRouter wires every route group over test deps and returns an HTTP
// helper plus tokens for an editor (user 1) and an admin (user 2).
func newTestRouter(t *testing.T, deps *Deps) (*testutil.HTTPTestHelper, string, string) {
	t.Helper()

	mux := http.NewServeMux()
	SetupRoutes(mux, deps)

	jwtService := auth.NewJWTService(deps.Config)
	editorToken, err := jwtService.GenerateAccessToken(1, "editor-one", auth.RoleEditor)
	if err != nil {
		t.Fatalf("failed to generate editor token: %v", err)
	}
	adminToken, err := jwtService.GenerateAccessToken(2, "admin-one", auth.RoleAdmin)
	if err != nil {
		t.Fatalf("failed to generate admin token: %v", err)
	}

	return testutil.NewHTTPTestHelper(mux), editorToken, adminToken
}

// seedDonor stores a two-cell donor building on tile (0x01,0x02) and returns
// the tile id. Mirrors the blueprint package's donor fixture.
func seedDonor(t *testing.T, store *record.MemStore) uint16 {
	t.Helper()

	tile := landblock.TileID(0x01, 0x02)

	donor := record.BuildingInfo{
		ModelID:   testDonorModel,
		NumLeaves: 11,
		Frame: record.Frame{
			Origin:      mgl32.Vec3{36, 156, 0},
			Orientation: mgl32.QuatIdent(),
		},
		Portals: []record.BuildingPortal{
			{OtherCellID: 0x0101, StabList: []uint16{0x0101, 0x0014}},
		},
	}

	cells := []*record.EnvCell{
		{
			ID:            landblock.MakeRecordID(tile, 0x0101),
			Flags:         0x01,
			EnvironmentID: 0x0223,
			Frame: record.Frame{
				Origin:      mgl32.Vec3{36, 156, 0},
				Orientation: mgl32.QuatIdent(),
			},
			CellPortals:  []record.CellPortal{{OtherCellID: 0x0102}},
			VisibleCells: []uint16{0x0102, 0x0014},
		},
		{
			ID:            landblock.MakeRecordID(tile, 0x0102),
			Flags:         0x01,
			EnvironmentID: 0x0224,
			Frame: record.Frame{
				Origin:      mgl32.Vec3{36, 168, 0},
				Orientation: mgl32.QuatIdent(),
			},
			CellPortals:  []record.CellPortal{{OtherCellID: 0x0101}},
			VisibleCells: []uint16{0x0101},
		},
	}
	for _, cell := range cells {
		if err := store.SaveEnvCell(cell); err != nil {
			t.Fatalf("failed to seed cell 0x%08X: %v", cell.ID, err)
		}
	}

	info := &record.LandblockInfo{
		Tile:      tile,
		NumCells:  2,
		Buildings: []record.BuildingInfo{donor},
	}
	if err := store.SaveLandblockInfo(info); err != nil {
		t.Fatalf("failed to seed landblock info: %v", err)
	}

	return tile
}
