package database

import (
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/landforge/server/internal/landblock"
	"github.com/landforge/server/internal/record"
	"github.com/landforge/server/internal/testutil"
)

func setupRecordStorage(t *testing.T) *RecordStorage {
	t.Helper()
	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CloseDB(t, db) })

	if err := Bootstrap(db); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	testutil.TruncateTables(t, db, "landblock_records")
	return NewRecordStorage(db)
}

func sampleCell(id uint32) *record.EnvCell {
	return &record.EnvCell{
		ID:            id,
		Flags:         0x01,
		EnvironmentID: 0x0223,
		Frame: record.Frame{
			Origin:      mgl32.Vec3{36, 156, 0},
			Orientation: mgl32.QuatIdent(),
		},
		CellPortals:  []record.CellPortal{{OtherCellID: 0x0102}},
		VisibleCells: []uint16{0x0102, 0x0014},
	}
}

func TestRecordStorage_EnvCellRoundTrip(t *testing.T) {
	storage := setupRecordStorage(t)

	id := landblock.MakeRecordID(0x0102, 0x0101)
	if err := storage.SaveEnvCell(sampleCell(id)); err != nil {
		t.Fatalf("SaveEnvCell failed: %v", err)
	}

	loaded, err := storage.EnvCell(id)
	if err != nil {
		t.Fatalf("EnvCell failed: %v", err)
	}

	if loaded.ID != id {
		t.Errorf("Expected id 0x%08X, got 0x%08X", id, loaded.ID)
	}
	if loaded.EnvironmentID != 0x0223 {
		t.Errorf("Expected environment 0x0223, got 0x%04X", loaded.EnvironmentID)
	}
	if len(loaded.VisibleCells) != 2 || loaded.VisibleCells[1] != 0x0014 {
		t.Errorf("Visible cells did not round trip: %v", loaded.VisibleCells)
	}
}

func TestRecordStorage_EnvCellNotFound(t *testing.T) {
	storage := setupRecordStorage(t)

	_, err := storage.EnvCell(landblock.MakeRecordID(0x0102, 0x0101))
	if !errors.Is(err, record.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestRecordStorage_SaveBumpsIteration(t *testing.T) {
	storage := setupRecordStorage(t)

	id := landblock.MakeRecordID(0x0102, 0x0101)
	cell := sampleCell(id)
	for i := 0; i < 3; i++ {
		if err := storage.SaveEnvCell(cell); err != nil {
			t.Fatalf("SaveEnvCell failed: %v", err)
		}
	}

	iteration, err := storage.RecordIteration(id)
	if err != nil {
		t.Fatalf("RecordIteration failed: %v", err)
	}
	if iteration != 3 {
		t.Errorf("Expected iteration 3 after three saves, got %d", iteration)
	}
}

func TestRecordStorage_LandblockInfoRoundTrip(t *testing.T) {
	storage := setupRecordStorage(t)

	info := &record.LandblockInfo{
		Tile:     0x0102,
		NumCells: 2,
		Buildings: []record.BuildingInfo{
			{ModelID: 0x02001234, NumLeaves: 11, Frame: record.Frame{
				Origin:      mgl32.Vec3{36, 156, 0},
				Orientation: mgl32.QuatIdent(),
			}},
		},
		Objects: []record.Stab{
			{ModelID: 0x01000111, Frame: record.Frame{
				Origin:      mgl32.Vec3{10, 20, 0},
				Orientation: mgl32.QuatIdent(),
			}},
		},
	}
	if err := storage.SaveLandblockInfo(info); err != nil {
		t.Fatalf("SaveLandblockInfo failed: %v", err)
	}

	loaded, err := storage.LandblockInfo(0x0102)
	if err != nil {
		t.Fatalf("LandblockInfo failed: %v", err)
	}

	if loaded.NumCells != 2 {
		t.Errorf("Expected 2 cells, got %d", loaded.NumCells)
	}
	if len(loaded.Buildings) != 1 || loaded.Buildings[0].ModelID != 0x02001234 {
		t.Errorf("Buildings did not round trip: %+v", loaded.Buildings)
	}
	if len(loaded.Objects) != 1 || loaded.Objects[0].ModelID != 0x01000111 {
		t.Errorf("Objects did not round trip: %+v", loaded.Objects)
	}
}

func TestRecordStorage_InfoTiles(t *testing.T) {
	storage := setupRecordStorage(t)

	for _, tile := range []uint16{0x0102, 0x0304} {
		if err := storage.SaveLandblockInfo(&record.LandblockInfo{Tile: tile}); err != nil {
			t.Fatalf("SaveLandblockInfo failed: %v", err)
		}
	}
	// A plain cell record must not show up in the tile list
	if err := storage.SaveEnvCell(sampleCell(landblock.MakeRecordID(0x0506, 0x0101))); err != nil {
		t.Fatalf("SaveEnvCell failed: %v", err)
	}

	tiles, err := storage.InfoTiles()
	if err != nil {
		t.Fatalf("InfoTiles failed: %v", err)
	}
	if len(tiles) != 2 || tiles[0] != 0x0102 || tiles[1] != 0x0304 {
		t.Errorf("Expected tiles [0102 0304], got %04X", tiles)
	}
}
