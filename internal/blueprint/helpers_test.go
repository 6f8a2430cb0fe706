package blueprint

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/landforge/server/internal/landblock"
	"github.com/landforge/server/internal/record"
)

const donorModelID = 0x02001234

// donorFixture stores a two-cell donor building on one tile: the building at
// local (36,156) with one exterior portal into cell 0x0101, the two cells
// linked to each other, and the portal stab-listing cell 0x0101 plus the
// land cell at grid (2,3).
func donorFixture(t *testing.T) (*record.MemStore, *record.BuildingInfo, uint16) {
	t.Helper()

	store := record.NewMemStore()
	tile := landblock.TileID(0x01, 0x02)

	donor := record.BuildingInfo{
		ModelID:   donorModelID,
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
			Stabs: []record.Stab{
				{ModelID: 0x01000111, Frame: record.Frame{
					Origin:      mgl32.Vec3{37, 157, 0.5},
					Orientation: mgl32.QuatIdent(),
				}},
			},
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

	return store, &donor, tile
}

// scanOnlyStore hides the MemStore's enumeration surface so donor searches
// have to fall back to probing every tile coordinate.
type scanOnlyStore struct {
	inner *record.MemStore
}

func (s scanOnlyStore) EnvCell(id uint32) (*record.EnvCell, error) { return s.inner.EnvCell(id) }
func (s scanOnlyStore) SaveEnvCell(cell *record.EnvCell) error     { return s.inner.SaveEnvCell(cell) }
func (s scanOnlyStore) LandblockInfo(tile uint16) (*record.LandblockInfo, error) {
	return s.inner.LandblockInfo(tile)
}
func (s scanOnlyStore) SaveLandblockInfo(info *record.LandblockInfo) error {
	return s.inner.SaveLandblockInfo(info)
}

func quatsAligned(a, b mgl32.Quat, tol float32) bool {
	d := a.Dot(b)
	if d < 0 {
		d = -d
	}
	return d > 1-tol
}
