package record

import "github.com/go-gl/mathgl/mgl32"

// Frame is a rigid-body placement: an origin plus an orientation quaternion.
type Frame struct {
	Origin      mgl32.Vec3
	Orientation mgl32.Quat
}

// IdentityFrame returns a frame at the origin with no rotation.
func IdentityFrame() Frame {
	return Frame{Orientation: mgl32.QuatIdent()}
}

// Stab is a lightweight placed object: a model id plus a frame. Stabs appear
// loose in a tile's scatter list and inside interior cells.
type Stab struct {
	ModelID uint32
	Frame   Frame
}

// StaticObject is the flat edited representation produced by the editing
// client: world-space placement with no building or cell structure. The
// server only ever reads a snapshot of these at save time.
type StaticObject struct {
	ModelID     uint32
	IsSetup     bool
	Origin      mgl32.Vec3
	Orientation mgl32.Quat
	Scale       mgl32.Vec3
}

// BuildingPortal connects a building's exterior to its interior cells.
// StabList carries extra cell ids the portal exposes beyond OtherCellID.
type BuildingPortal struct {
	Flags         uint16
	OtherCellID   uint16
	OtherPortalID uint16
	StabList      []uint16
}

// BuildingInfo is one building entry in a tile's metadata record. The frame
// is tile-local.
type BuildingInfo struct {
	ModelID   uint32
	Frame     Frame
	NumLeaves uint32
	Portals   []BuildingPortal
}

// CellPortal is a graph edge from one interior cell to a neighbor.
type CellPortal struct {
	Flags         uint16
	PolygonID     uint16
	OtherCellID   uint16
	OtherPortalID uint16
}

// EnvCell is one interior cell (room) of a building. ID is the full 32-bit
// record address; the frame is tile-local. VisibleCells may hold interior
// cell ids or outdoor land-cell ids.
type EnvCell struct {
	ID             uint32
	Flags          uint32
	EnvironmentID  uint16
	CellStructure  uint16
	Frame          Frame
	CellPortals    []CellPortal
	VisibleCells   []uint16
	Stabs          []Stab
	RestrictionObj uint32
}

// LandblockInfo is a tile's building/scatter metadata record (local id
// 0xFFFE). NumCells is the running tally of interior cells in the tile,
// maintained by the reconciler.
type LandblockInfo struct {
	Tile      uint16
	NumCells  uint32
	Objects   []Stab
	Buildings []BuildingInfo
}

// Clone returns a deep copy of the cell.
func (c *EnvCell) Clone() *EnvCell {
	out := *c
	out.CellPortals = append([]CellPortal(nil), c.CellPortals...)
	out.VisibleCells = append([]uint16(nil), c.VisibleCells...)
	out.Stabs = append([]Stab(nil), c.Stabs...)
	return &out
}

// Clone returns a deep copy of the building entry.
func (b *BuildingInfo) Clone() *BuildingInfo {
	out := *b
	out.Portals = make([]BuildingPortal, len(b.Portals))
	for i, p := range b.Portals {
		out.Portals[i] = p
		out.Portals[i].StabList = append([]uint16(nil), p.StabList...)
	}
	return &out
}

// Clone returns a deep copy of the metadata record.
func (info *LandblockInfo) Clone() *LandblockInfo {
	out := *info
	out.Objects = append([]Stab(nil), info.Objects...)
	out.Buildings = make([]BuildingInfo, len(info.Buildings))
	for i := range info.Buildings {
		out.Buildings[i] = *info.Buildings[i].Clone()
	}
	return &out
}
