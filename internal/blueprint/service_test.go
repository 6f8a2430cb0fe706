package blueprint

import (
	"sync"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/landforge/server/internal/landblock"
	"github.com/landforge/server/internal/performance"
	"github.com/landforge/server/internal/record"
)

func TestServiceBlueprintCaching(t *testing.T) {
	store, _, _ := donorFixture(t)
	svc := NewService(store, performance.NewProfiler(true))

	bp, ok := svc.Blueprint(donorModelID)
	if !ok || bp == nil {
		t.Fatal("Blueprint() did not find the seeded donor")
	}

	again, ok := svc.Blueprint(donorModelID)
	if !ok || again != bp {
		t.Error("second lookup did not return the cached blueprint")
	}
}

func TestServiceNegativeCaching(t *testing.T) {
	store, _, _ := donorFixture(t)
	svc := NewService(store, nil)

	const unknown = 0x02777777
	if _, ok := svc.Blueprint(unknown); ok {
		t.Fatal("Blueprint() found a donor for an unknown model")
	}

	// Seed a donor for that model after the miss: the negative entry must
	// keep answering until the caches are cleared.
	tile := landblock.TileID(0x09, 0x09)
	info := &record.LandblockInfo{
		Tile: tile,
		Buildings: []record.BuildingInfo{
			{ModelID: unknown, Frame: record.IdentityFrame()},
		},
	}
	if err := store.SaveLandblockInfo(info); err != nil {
		t.Fatalf("failed to seed donor: %v", err)
	}

	if _, ok := svc.Blueprint(unknown); ok {
		t.Error("negative cache entry was not honored")
	}

	svc.ClearCaches()
	if _, ok := svc.Blueprint(unknown); !ok {
		t.Error("Blueprint() still misses after ClearCaches")
	}
}

func TestServiceIsBuildingModel(t *testing.T) {
	store, _, _ := donorFixture(t)
	svc := NewService(store, nil)

	if !svc.IsBuildingModel(donorModelID) {
		t.Error("IsBuildingModel missed the seeded building model")
	}
	if svc.IsBuildingModel(0x01000111) {
		t.Error("IsBuildingModel classified a scatter model as a building")
	}
}

func TestServiceClassifierSingleScan(t *testing.T) {
	store, _, _ := donorFixture(t)
	svc := NewService(store, nil)

	var wg sync.WaitGroup
	results := make([]bool, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = svc.IsBuildingModel(donorModelID)
		}(i)
	}
	wg.Wait()

	for i, ok := range results {
		if !ok {
			t.Fatalf("goroutine %d saw an inconsistent classifier answer", i)
		}
	}
}

func TestServiceClearCachesResetsClassifier(t *testing.T) {
	store, _, _ := donorFixture(t)
	svc := NewService(store, nil)

	const newModel = 0x02005555
	if svc.IsBuildingModel(newModel) {
		t.Fatal("unexpected classification before the model exists")
	}

	tile := landblock.TileID(0x0B, 0x0B)
	info := &record.LandblockInfo{
		Tile: tile,
		Buildings: []record.BuildingInfo{
			{ModelID: newModel, Frame: record.Frame{
				Origin:      mgl32.Vec3{5, 5, 0},
				Orientation: mgl32.QuatIdent(),
			}},
		},
	}
	if err := store.SaveLandblockInfo(info); err != nil {
		t.Fatalf("failed to seed building: %v", err)
	}

	// The stale set still answers false until invalidated.
	if svc.IsBuildingModel(newModel) {
		t.Fatal("classifier rebuilt itself without ClearCaches")
	}

	svc.ClearCaches()
	if !svc.IsBuildingModel(newModel) {
		t.Error("classifier did not pick up the new building after ClearCaches")
	}
}

func TestServiceCacheStats(t *testing.T) {
	store, _, _ := donorFixture(t)
	svc := NewService(store, nil)

	stats := svc.CacheStats()
	if stats.CachedBlueprints != 0 || stats.ClassifierBuilt {
		t.Errorf("fresh service stats = %+v", stats)
	}

	svc.Blueprint(donorModelID)
	svc.Blueprint(0x02888888)
	svc.IsBuildingModel(donorModelID)

	stats = svc.CacheStats()
	if stats.CachedBlueprints != 1 {
		t.Errorf("stats.CachedBlueprints = %d, expected 1", stats.CachedBlueprints)
	}
	if stats.NegativeEntries != 1 {
		t.Errorf("stats.NegativeEntries = %d, expected 1", stats.NegativeEntries)
	}
	if !stats.ClassifierBuilt || stats.BuildingModels != 1 {
		t.Errorf("classifier stats = %+v, expected one known model", stats)
	}
}
