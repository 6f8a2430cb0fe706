package blueprint

import (
	"sync"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/landforge/server/internal/landblock"
	"github.com/landforge/server/internal/performance"
	"github.com/landforge/server/internal/record"
)

// Service owns the two process-wide caches derived from the record space:
// the blueprint cache and the building-model set. Both are filled lazily
// under a check-then-lock-then-recheck pattern, so concurrent callers
// converge on a single extraction or world scan and everyone else reads the
// cached result. Pass the service explicitly to whatever needs it; there is
// no package-level state.
type Service struct {
	store    record.Store
	profiler *performance.Profiler

	cacheMu    sync.RWMutex
	blueprints map[uint32]*Blueprint // nil entry = no donor exists

	modelsMu       sync.RWMutex
	buildingModels map[uint32]struct{} // nil until the first world scan
}

// NewService creates a blueprint service over a record store. profiler may
// be nil.
func NewService(store record.Store, profiler *performance.Profiler) *Service {
	return &Service{
		store:      store,
		profiler:   profiler,
		blueprints: make(map[uint32]*Blueprint),
	}
}

func (s *Service) startOp(name string) *performance.Operation {
	if s.profiler == nil {
		return nil
	}
	return s.profiler.Start(name)
}

// Blueprint returns the template for a model id, extracting it from a donor
// building on first use. ok=false means no donor exists anywhere in the
// world; that outcome is cached too, so repeated lookups for an unknown
// model stay cheap.
func (s *Service) Blueprint(modelID uint32) (*Blueprint, bool) {
	s.cacheMu.RLock()
	bp, cached := s.blueprints[modelID]
	s.cacheMu.RUnlock()
	if cached {
		return bp, bp != nil
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if bp, cached := s.blueprints[modelID]; cached {
		return bp, bp != nil
	}

	op := s.startOp("blueprint_extract")
	var result *Blueprint
	if donor, tile, found := FindDonor(s.store, modelID); found {
		result = Extract(s.store, donor, tile)
	}
	op.End()

	s.blueprints[modelID] = result
	return result, result != nil
}

// Instantiate stamps a blueprint into a tile at a new transform. See the
// package-level Instantiate for the remapping and persistence contract.
func (s *Service) Instantiate(bp *Blueprint, origin mgl32.Vec3, orientation mgl32.Quat, tile uint16, currentCellCount uint32) (*record.BuildingInfo, int, error) {
	op := s.startOp("blueprint_instantiate")
	defer op.End()
	return Instantiate(s.store, bp, origin, orientation, tile, currentCellCount)
}

// IsBuildingModel reports whether a model id appears as a building anywhere
// in the world. The answer set is built once by scanning every tile's
// building list; exactly one goroutine performs the scan while the rest
// block, and later calls are plain set lookups.
func (s *Service) IsBuildingModel(modelID uint32) bool {
	s.modelsMu.RLock()
	models := s.buildingModels
	s.modelsMu.RUnlock()
	if models != nil {
		_, ok := models[modelID]
		return ok
	}

	s.modelsMu.Lock()
	defer s.modelsMu.Unlock()
	if s.buildingModels == nil {
		op := s.startOp("world_scan")
		s.buildingModels = scanBuildingModels(s.store)
		op.End()
	}
	_, ok := s.buildingModels[modelID]
	return ok
}

func scanBuildingModels(store record.Store) map[uint32]struct{} {
	models := make(map[uint32]struct{})

	scanTile := func(tile uint16) {
		info, err := store.LandblockInfo(tile)
		if err != nil {
			return
		}
		for i := range info.Buildings {
			models[info.Buildings[i].ModelID] = struct{}{}
		}
	}

	if lister, ok := store.(record.TileLister); ok {
		tiles, err := lister.InfoTiles()
		if err == nil && len(tiles) > 0 {
			for _, tile := range tiles {
				scanTile(tile)
			}
			return models
		}
	}

	for x := 0; x < landblock.TileAxisCount; x++ {
		for y := 0; y < landblock.TileAxisCount; y++ {
			scanTile(landblock.TileID(uint8(x), uint8(y)))
		}
	}
	return models
}

// ClearCaches drops the blueprint cache and the building-model set
// together. Both derive from the same records, so they are only ever
// invalidated as a pair. Call after the underlying data changes outside a
// reconciliation pass.
func (s *Service) ClearCaches() {
	s.cacheMu.Lock()
	s.blueprints = make(map[uint32]*Blueprint)
	s.cacheMu.Unlock()

	s.modelsMu.Lock()
	s.buildingModels = nil
	s.modelsMu.Unlock()
}

// Stats describes the current cache population for the admin surface.
type Stats struct {
	CachedBlueprints int  `json:"cached_blueprints"`
	NegativeEntries  int  `json:"negative_entries"`
	ClassifierBuilt  bool `json:"classifier_built"`
	BuildingModels   int  `json:"building_models"`
}

// CacheStats reports how populated the two caches are.
func (s *Service) CacheStats() Stats {
	var stats Stats

	s.cacheMu.RLock()
	for _, bp := range s.blueprints {
		if bp == nil {
			stats.NegativeEntries++
		} else {
			stats.CachedBlueprints++
		}
	}
	s.cacheMu.RUnlock()

	s.modelsMu.RLock()
	stats.ClassifierBuilt = s.buildingModels != nil
	stats.BuildingModels = len(s.buildingModels)
	s.modelsMu.RUnlock()

	return stats
}
