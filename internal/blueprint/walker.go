package blueprint

import (
	"sort"

	"github.com/landforge/server/internal/landblock"
	"github.com/landforge/server/internal/record"
)

// CollectOwnedCells walks a building's interior portal graph breadth-first
// and returns the set of local cell ids the building owns. The queue is
// seeded from every building portal's OtherCellID and stab-list entry that
// is a valid interior id; expansion follows each fetched cell's CellPortals.
//
// Membership is checked before enqueue, so cyclic graphs terminate. A cell
// whose record cannot be fetched stays in the owned set but does not expand
// further. exclude guards against absorbing a neighboring building's cells;
// the default reconciliation path passes nil because donor graphs are
// assumed disjoint.
func CollectOwnedCells(store record.Store, building *record.BuildingInfo, tile uint16, exclude map[uint16]struct{}) map[uint16]struct{} {
	visited := make(map[uint16]struct{})
	queue := make([]uint16, 0, len(building.Portals))

	enqueue := func(local uint16) {
		if !landblock.IsEnvCellLocal(local) {
			return
		}
		if _, seen := visited[local]; seen {
			return
		}
		if exclude != nil {
			if _, skip := exclude[local]; skip {
				return
			}
		}
		visited[local] = struct{}{}
		queue = append(queue, local)
	}

	for _, portal := range building.Portals {
		enqueue(portal.OtherCellID)
		for _, id := range portal.StabList {
			enqueue(id)
		}
	}

	for len(queue) > 0 {
		local := queue[0]
		queue = queue[1:]

		cell, err := store.EnvCell(landblock.MakeRecordID(tile, local))
		if err != nil {
			// Missing record: this branch does not extend further.
			continue
		}
		for _, portal := range cell.CellPortals {
			enqueue(portal.OtherCellID)
		}
	}

	return visited
}

// sortedCellIDs returns the owned set as an ascending slice. Extraction
// processes cells in id order so a blueprint's layout is deterministic.
func sortedCellIDs(owned map[uint16]struct{}) []uint16 {
	ids := make([]uint16, 0, len(owned))
	for id := range owned {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
