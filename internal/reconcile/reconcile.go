// Package reconcile implements the save-time merge between an edited flat
// object list and a tile's stored building and cell records. Buildings are
// matched by model id to their nearest edited counterpart and moved in
// place, originals without a counterpart are dropped, and leftover edited
// objects become new buildings (through the blueprint service) or plain
// scatter entries.
package reconcile

import (
	"fmt"
	"log"
	"sort"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/landforge/server/internal/blueprint"
	"github.com/landforge/server/internal/landblock"
	"github.com/landforge/server/internal/performance"
	"github.com/landforge/server/internal/record"
)

const (
	// moveTolerance is the local-frame distance below which a matched
	// building counts as unmoved.
	moveTolerance = 0.01
	// rotationAlignment is the orientation-dot threshold: |dot| below
	// this means the building was rotated.
	rotationAlignment = 0.9999
)

// Stats summarizes what one reconciliation pass did to a tile.
type Stats struct {
	Matched   int `json:"matched"`
	Moved     int `json:"moved"`
	Rotated   int `json:"rotated"`
	Deleted   int `json:"deleted"`
	Created   int `json:"created"`
	Scattered int `json:"scattered"`
}

// Result is the tile state produced by a reconciliation pass, as written to
// the tile's metadata record.
type Result struct {
	Tile      uint16
	Buildings []record.BuildingInfo
	Objects   []record.Stab
	CellCount uint32
	Stats     Stats
}

// Reconciler applies edited object lists back onto tile records. Each pass
// owns its working state, so distinct tiles may be reconciled concurrently;
// the store serializes the actual record I/O.
type Reconciler struct {
	store      record.Store
	blueprints *blueprint.Service
	profiler   *performance.Profiler
}

// New creates a reconciler. profiler may be nil.
func New(store record.Store, blueprints *blueprint.Service, profiler *performance.Profiler) *Reconciler {
	return &Reconciler{
		store:      store,
		blueprints: blueprints,
		profiler:   profiler,
	}
}

// editedObject is one entry of the edited list with its tile-local origin
// and consumption mark.
type editedObject struct {
	record.StaticObject
	localOrigin mgl32.Vec3
	consumed    bool
}

// ReconcileTile diffs the edited flat object list against the tile's stored
// building records, persists every touched cell, and writes the updated
// metadata record. The first failed write aborts this tile and is returned;
// records already written stay behind. Other tiles are unaffected.
func (r *Reconciler) ReconcileTile(tile uint16, edited []record.StaticObject) (*Result, error) {
	if r.profiler != nil {
		op := r.profiler.Start("reconcile_tile")
		defer op.End()
	}

	info, err := r.store.LandblockInfo(tile)
	if err != nil {
		// No metadata record yet: reconcile against an empty tile.
		info = &record.LandblockInfo{Tile: tile}
	}

	work := make([]editedObject, len(edited))
	for i, obj := range edited {
		work[i] = editedObject{
			StaticObject: obj,
			localOrigin:  landblock.ToLocal(tile, obj.Origin),
		}
	}

	result := &Result{Tile: tile, CellCount: info.NumCells}

	for i := range info.Buildings {
		building := &info.Buildings[i]

		match := nearestUnconsumed(work, building)
		if match < 0 {
			// Deleted by the user. The cell records stay behind as
			// orphaned data; only the tally is adjusted.
			owned := blueprint.CollectOwnedCells(r.store, building, tile, nil)
			result.CellCount = subtractTally(result.CellCount, len(owned), tile, building.ModelID)
			result.Stats.Deleted++
			continue
		}
		work[match].consumed = true

		updated, err := r.applyMove(tile, building, &work[match], &result.Stats)
		if err != nil {
			return nil, err
		}
		result.Buildings = append(result.Buildings, *updated)
		result.Stats.Matched++
	}

	for i := range work {
		if work[i].consumed {
			continue
		}
		obj := &work[i]

		if r.blueprints.IsBuildingModel(obj.ModelID) {
			if bp, ok := r.blueprints.Blueprint(obj.ModelID); ok {
				building, created, err := r.blueprints.Instantiate(bp, obj.localOrigin, obj.Orientation, tile, result.CellCount)
				if err == nil {
					result.Buildings = append(result.Buildings, *building)
					result.CellCount += uint32(created)
					result.Stats.Created++
					continue
				}
				log.Printf("Reconcile: instantiation of model %08X on tile 0x%04X failed, keeping it as scatter: %v",
					obj.ModelID, tile, err)
			}
		}

		result.Objects = append(result.Objects, record.Stab{
			ModelID: obj.ModelID,
			Frame: record.Frame{
				Origin:      obj.localOrigin,
				Orientation: obj.Orientation,
			},
		})
		result.Stats.Scattered++
	}

	updatedInfo := &record.LandblockInfo{
		Tile:      tile,
		NumCells:  result.CellCount,
		Objects:   result.Objects,
		Buildings: result.Buildings,
	}
	if err := r.store.SaveLandblockInfo(updatedInfo); err != nil {
		return nil, fmt.Errorf("failed to save metadata for tile 0x%04X: %w", tile, err)
	}

	return result, nil
}

// nearestUnconsumed picks the closest unconsumed edited object with the
// building's model id. Closest wins regardless of distance; with several
// same-model candidates the heuristic can pick the wrong one, and that is
// accepted rather than detected.
func nearestUnconsumed(work []editedObject, building *record.BuildingInfo) int {
	best := -1
	var bestDist float32
	for i := range work {
		if work[i].consumed || work[i].ModelID != building.ModelID {
			continue
		}
		dist := work[i].localOrigin.Sub(building.Frame.Origin).Len()
		if best < 0 || dist < bestDist {
			best = i
			bestDist = dist
		}
	}
	return best
}

// applyMove carries a matched building from its stored frame to the edited
// one. A building that neither moved nor rotated is kept untouched. Moved
// or rotated buildings drag their owned cells along: rotation pivots every
// cell (and cell stab) about the old building origin, translation shifts
// them, and a crossing of the outdoor grid rewrites land-cell visibility
// ids. Every touched cell is persisted immediately.
func (r *Reconciler) applyMove(tile uint16, building *record.BuildingInfo, obj *editedObject, stats *Stats) (*record.BuildingInfo, error) {
	oldOrigin := building.Frame.Origin
	oldOrientation := building.Frame.Orientation
	newOrigin := obj.localOrigin
	newOrientation := obj.Orientation

	moved := newOrigin.Sub(oldOrigin).Len() > moveTolerance
	alignment := newOrientation.Dot(oldOrientation)
	if alignment < 0 {
		alignment = -alignment
	}
	rotated := alignment < rotationAlignment

	if !moved && !rotated {
		return building.Clone(), nil
	}
	if moved {
		stats.Moved++
	}
	if rotated {
		stats.Rotated++
	}

	positionDelta := newOrigin.Sub(oldOrigin)
	rotationDelta := newOrientation.Mul(oldOrientation.Inverse())

	oldCellX, oldCellY := landblock.LandCellAt(oldOrigin.X(), oldOrigin.Y())
	newCellX, newCellY := landblock.LandCellAt(newOrigin.X(), newOrigin.Y())
	gridDeltaX := newCellX - oldCellX
	gridDeltaY := newCellY - oldCellY
	crossedGrid := gridDeltaX != 0 || gridDeltaY != 0

	owned := blueprint.CollectOwnedCells(r.store, building, tile, nil)
	for _, local := range sortedIDs(owned) {
		cell, err := r.store.EnvCell(landblock.MakeRecordID(tile, local))
		if err != nil {
			continue
		}

		if rotated {
			offset := cell.Frame.Origin.Sub(oldOrigin)
			cell.Frame.Origin = oldOrigin.Add(rotationDelta.Rotate(offset)).Add(positionDelta)
			cell.Frame.Orientation = rotationDelta.Mul(cell.Frame.Orientation).Normalize()
			for i := range cell.Stabs {
				stabOffset := cell.Stabs[i].Frame.Origin.Sub(oldOrigin)
				cell.Stabs[i].Frame.Origin = oldOrigin.Add(rotationDelta.Rotate(stabOffset)).Add(positionDelta)
				cell.Stabs[i].Frame.Orientation = rotationDelta.Mul(cell.Stabs[i].Frame.Orientation).Normalize()
			}
		} else {
			cell.Frame.Origin = cell.Frame.Origin.Add(positionDelta)
			for i := range cell.Stabs {
				cell.Stabs[i].Frame.Origin = cell.Stabs[i].Frame.Origin.Add(positionDelta)
			}
		}

		if crossedGrid {
			remapLandCells(cell.VisibleCells, gridDeltaX, gridDeltaY)
		}

		if err := r.store.SaveEnvCell(cell); err != nil {
			return nil, fmt.Errorf("failed to save cell 0x%08X: %w", cell.ID, err)
		}
	}

	updated := building.Clone()
	updated.Frame = record.Frame{Origin: newOrigin, Orientation: newOrientation}
	return updated, nil
}

// remapLandCells shifts every land-cell id in a visibility list by the
// outdoor grid delta, clamping each axis to the grid. Interior ids are left
// alone.
func remapLandCells(visible []uint16, deltaX, deltaY int) {
	for i, id := range visible {
		if !landblock.IsLandCellLocal(id) {
			continue
		}
		x, y := landblock.LandCellCoords(id)
		x = clampGrid(x + deltaX)
		y = clampGrid(y + deltaY)
		visible[i] = landblock.LandCellLocal(x, y)
	}
}

func clampGrid(c int) int {
	if c < 0 {
		return 0
	}
	if c >= landblock.LandCellGrid {
		return landblock.LandCellGrid - 1
	}
	return c
}

func subtractTally(tally uint32, owned int, tile uint16, modelID uint32) uint32 {
	if uint32(owned) > tally {
		log.Printf("Reconcile: tile 0x%04X tally %d below the %d cells of deleted building %08X, clamping to zero",
			tile, tally, owned, modelID)
		return 0
	}
	return tally - uint32(owned)
}

func sortedIDs(owned map[uint16]struct{}) []uint16 {
	ids := make([]uint16, 0, len(owned))
	for id := range owned {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
