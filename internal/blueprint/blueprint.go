// Package blueprint implements the building template system: walking a
// building's interior portal graph, extracting an origin-relative template
// from a donor instance, and stamping that template back into the world at a
// new transform with consistent cell-id remapping.
package blueprint

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/landforge/server/internal/record"
)

// CellSnapshot is one interior cell of a blueprint. Geometry is stored
// relative to the donor building's frame: the donor's rotation is undone and
// its origin subtracted, so the snapshot can be replayed under any new
// transform. Portal and visible-cell ids are the donor's local ids, remapped
// only at instantiation time.
type CellSnapshot struct {
	OriginalCellID      uint16
	Flags               uint32
	EnvironmentID       uint16
	CellStructure       uint16
	RelativeOrigin      mgl32.Vec3
	RelativeOrientation mgl32.Quat
	CellPortals         []record.CellPortal
	VisibleCells        []uint16
	Stabs               []record.Stab
	RestrictionObj      uint32
}

// Blueprint is an immutable, origin/orientation-relative template of a
// building's interior graph, cached by model id. PortalTemplates carry the
// donor's building portals with stab lists already filtered to owned or
// non-interior ids; VisibleCells inside each snapshot are filtered to owned
// ids only.
type Blueprint struct {
	ModelID          uint32
	NumLeaves        uint32
	DonorOrientation mgl32.Quat
	PortalTemplates  []record.BuildingPortal
	Cells            []CellSnapshot

	indexByOriginal map[uint16]int
}

// CellIndex returns the position of the snapshot with the given donor-local
// cell id, or false when the id is not part of this blueprint.
func (bp *Blueprint) CellIndex(originalID uint16) (int, bool) {
	i, ok := bp.indexByOriginal[originalID]
	return i, ok
}
