package blueprint

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/landforge/server/internal/landblock"
	"github.com/landforge/server/internal/record"
)

// Instantiate stamps a blueprint into a tile at a new transform. Fresh cell
// ids are allocated sequentially from currentCellCount + 0x0100, one per
// snapshot in stored order, and every portal, visible-cell, and stab-list
// reference inside the template is pushed through that remap table; ids
// outside the table (land cells, foreign ids) pass through unchanged.
//
// Each cell is persisted as it is built. The first save failure aborts the
// instantiation and is returned; cells already written stay behind and the
// caller must not count any of them. On success the new building record and
// the number of cells created are returned.
func Instantiate(store record.Store, bp *Blueprint, newOrigin mgl32.Vec3, newOrientation mgl32.Quat, tile uint16, currentCellCount uint32) (*record.BuildingInfo, int, error) {
	remap := make(map[uint16]uint16, len(bp.Cells))
	for i, snap := range bp.Cells {
		newLocal := uint16(currentCellCount + uint32(i) + uint32(landblock.FirstEnvCell))
		remap[snap.OriginalCellID] = newLocal
	}

	remapID := func(id uint16) uint16 {
		if mapped, ok := remap[id]; ok {
			return mapped
		}
		return id
	}

	for _, snap := range bp.Cells {
		worldOffset := newOrientation.Rotate(snap.RelativeOrigin)

		cell := &record.EnvCell{
			ID:            landblock.MakeRecordID(tile, remap[snap.OriginalCellID]),
			Flags:         snap.Flags,
			EnvironmentID: snap.EnvironmentID,
			CellStructure: snap.CellStructure,
			Frame: record.Frame{
				Origin:      newOrigin.Add(worldOffset),
				Orientation: newOrientation.Mul(snap.RelativeOrientation).Normalize(),
			},
			RestrictionObj: snap.RestrictionObj,
		}

		for _, portal := range snap.CellPortals {
			portal.OtherCellID = remapID(portal.OtherCellID)
			cell.CellPortals = append(cell.CellPortals, portal)
		}
		for _, vis := range snap.VisibleCells {
			cell.VisibleCells = append(cell.VisibleCells, remapID(vis))
		}
		for _, stab := range snap.Stabs {
			cell.Stabs = append(cell.Stabs, record.Stab{
				ModelID: stab.ModelID,
				Frame: record.Frame{
					Origin:      newOrigin.Add(newOrientation.Rotate(stab.Frame.Origin)),
					Orientation: newOrientation.Mul(stab.Frame.Orientation).Normalize(),
				},
			})
		}

		if err := store.SaveEnvCell(cell); err != nil {
			return nil, 0, fmt.Errorf("failed to save cell 0x%08X: %w", cell.ID, err)
		}
	}

	building := &record.BuildingInfo{
		ModelID:   bp.ModelID,
		NumLeaves: bp.NumLeaves,
		Frame: record.Frame{
			Origin:      newOrigin,
			Orientation: newOrientation,
		},
	}
	for _, tpl := range bp.PortalTemplates {
		portal := record.BuildingPortal{
			Flags:         tpl.Flags,
			OtherCellID:   remapID(tpl.OtherCellID),
			OtherPortalID: tpl.OtherPortalID,
		}
		for _, id := range tpl.StabList {
			portal.StabList = append(portal.StabList, remapID(id))
		}
		building.Portals = append(building.Portals, portal)
	}

	return building, len(bp.Cells), nil
}
