package blueprint

import (
	"github.com/landforge/server/internal/landblock"
	"github.com/landforge/server/internal/record"
)

// Extract snapshots a donor building's interior graph into a blueprint.
// Cell geometry is re-expressed relative to the donor frame:
//
//	relativeOrigin      = inverse(donorOrientation) * (cellOrigin - donorOrigin)
//	relativeOrientation = normalize(inverse(donorOrientation) * cellOrientation)
//
// Visible-cell lists are filtered to the owned set, and building portal stab
// lists keep only owned or non-interior ids, so nothing in the template can
// reference another building's cells. A donor with no reachable cells still
// yields a valid, zero-cell blueprint.
func Extract(store record.Store, donor *record.BuildingInfo, tile uint16) *Blueprint {
	owned := CollectOwnedCells(store, donor, tile, nil)

	bp := &Blueprint{
		ModelID:          donor.ModelID,
		NumLeaves:        donor.NumLeaves,
		DonorOrientation: donor.Frame.Orientation,
		indexByOriginal:  make(map[uint16]int),
	}

	invDonor := donor.Frame.Orientation.Inverse()
	donorOrigin := donor.Frame.Origin

	for _, local := range sortedCellIDs(owned) {
		cell, err := store.EnvCell(landblock.MakeRecordID(tile, local))
		if err != nil {
			continue
		}

		snap := CellSnapshot{
			OriginalCellID:      local,
			Flags:               cell.Flags,
			EnvironmentID:       cell.EnvironmentID,
			CellStructure:       cell.CellStructure,
			RelativeOrigin:      invDonor.Rotate(cell.Frame.Origin.Sub(donorOrigin)),
			RelativeOrientation: invDonor.Mul(cell.Frame.Orientation).Normalize(),
			CellPortals:         append([]record.CellPortal(nil), cell.CellPortals...),
			RestrictionObj:      cell.RestrictionObj,
		}
		for _, vis := range cell.VisibleCells {
			if _, ok := owned[vis]; ok {
				snap.VisibleCells = append(snap.VisibleCells, vis)
			}
		}
		for _, stab := range cell.Stabs {
			snap.Stabs = append(snap.Stabs, record.Stab{
				ModelID: stab.ModelID,
				Frame: record.Frame{
					Origin:      invDonor.Rotate(stab.Frame.Origin.Sub(donorOrigin)),
					Orientation: invDonor.Mul(stab.Frame.Orientation).Normalize(),
				},
			})
		}

		bp.indexByOriginal[local] = len(bp.Cells)
		bp.Cells = append(bp.Cells, snap)
	}

	for _, portal := range donor.Portals {
		tpl := record.BuildingPortal{
			Flags:         portal.Flags,
			OtherCellID:   portal.OtherCellID,
			OtherPortalID: portal.OtherPortalID,
		}
		for _, id := range portal.StabList {
			if _, own := owned[id]; own || !landblock.IsEnvCellLocal(id) {
				tpl.StabList = append(tpl.StabList, id)
			}
		}
		bp.PortalTemplates = append(bp.PortalTemplates, tpl)
	}

	return bp
}

// FindDonor locates a building with the given model id anywhere in the
// world. Backends that can enumerate their populated tiles are searched
// through that list; when enumeration is unavailable or comes back empty,
// every tile coordinate is probed instead. The first donor found wins.
func FindDonor(store record.Store, modelID uint32) (*record.BuildingInfo, uint16, bool) {
	if lister, ok := store.(record.TileLister); ok {
		tiles, err := lister.InfoTiles()
		if err == nil && len(tiles) > 0 {
			for _, tile := range tiles {
				if donor, ok := donorInTile(store, tile, modelID); ok {
					return donor, tile, true
				}
			}
			return nil, 0, false
		}
	}

	for x := 0; x < landblock.TileAxisCount; x++ {
		for y := 0; y < landblock.TileAxisCount; y++ {
			tile := landblock.TileID(uint8(x), uint8(y))
			if donor, ok := donorInTile(store, tile, modelID); ok {
				return donor, tile, true
			}
		}
	}
	return nil, 0, false
}

func donorInTile(store record.Store, tile uint16, modelID uint32) (*record.BuildingInfo, bool) {
	info, err := store.LandblockInfo(tile)
	if err != nil {
		return nil, false
	}
	for i := range info.Buildings {
		if info.Buildings[i].ModelID == modelID {
			return info.Buildings[i].Clone(), true
		}
	}
	return nil, false
}
