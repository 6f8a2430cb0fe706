package record

import (
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestMemStoreEnvCell(t *testing.T) {
	store := NewMemStore()

	if _, err := store.EnvCell(0x00010100); !errors.Is(err, ErrNotFound) {
		t.Fatalf("EnvCell on empty store = %v, expected ErrNotFound", err)
	}

	cell := sampleEnvCell()
	if err := store.SaveEnvCell(cell); err != nil {
		t.Fatalf("SaveEnvCell failed: %v", err)
	}

	got, err := store.EnvCell(cell.ID)
	if err != nil {
		t.Fatalf("EnvCell failed: %v", err)
	}
	if got.Frame != cell.Frame || got.RestrictionObj != cell.RestrictionObj {
		t.Errorf("fetched cell = %+v, expected %+v", got, cell)
	}

	// Mutating a fetched copy must not touch the stored record.
	got.VisibleCells[0] = 0xAAAA
	again, err := store.EnvCell(cell.ID)
	if err != nil {
		t.Fatalf("EnvCell failed: %v", err)
	}
	if again.VisibleCells[0] != cell.VisibleCells[0] {
		t.Error("stored record shares memory with a fetched copy")
	}
}

func TestMemStoreLandblockInfo(t *testing.T) {
	store := NewMemStore()

	if _, err := store.LandblockInfo(0x1234); !errors.Is(err, ErrNotFound) {
		t.Fatalf("LandblockInfo on empty store = %v, expected ErrNotFound", err)
	}

	info := &LandblockInfo{Tile: 0x1234, NumCells: 3}
	if err := store.SaveLandblockInfo(info); err != nil {
		t.Fatalf("SaveLandblockInfo failed: %v", err)
	}

	got, err := store.LandblockInfo(0x1234)
	if err != nil {
		t.Fatalf("LandblockInfo failed: %v", err)
	}
	if got.NumCells != 3 {
		t.Errorf("fetched tally = %d, expected 3", got.NumCells)
	}
}

func TestMemStoreFailSaves(t *testing.T) {
	store := NewMemStore()
	boom := errors.New("disk full")
	store.FailSaves(boom)

	if err := store.SaveEnvCell(sampleEnvCell()); !errors.Is(err, boom) {
		t.Fatalf("SaveEnvCell = %v, expected injected failure", err)
	}
	if err := store.SaveLandblockInfo(&LandblockInfo{Tile: 1}); !errors.Is(err, boom) {
		t.Fatalf("SaveLandblockInfo = %v, expected injected failure", err)
	}

	store.FailSaves(nil)
	if err := store.SaveEnvCell(sampleEnvCell()); err != nil {
		t.Fatalf("SaveEnvCell after reset failed: %v", err)
	}
}

func TestMemStoreInfoTiles(t *testing.T) {
	store := NewMemStore()

	tiles, err := store.InfoTiles()
	if err != nil {
		t.Fatalf("InfoTiles failed: %v", err)
	}
	if len(tiles) != 0 {
		t.Errorf("InfoTiles on empty store = %v", tiles)
	}

	for _, tile := range []uint16{0x0300, 0x0100, 0x0200} {
		if err := store.SaveLandblockInfo(&LandblockInfo{Tile: tile}); err != nil {
			t.Fatalf("SaveLandblockInfo failed: %v", err)
		}
	}

	tiles, err = store.InfoTiles()
	if err != nil {
		t.Fatalf("InfoTiles failed: %v", err)
	}
	if len(tiles) != 3 || tiles[0] != 0x0100 || tiles[1] != 0x0200 || tiles[2] != 0x0300 {
		t.Errorf("InfoTiles = %v, expected ascending [0x0100 0x0200 0x0300]", tiles)
	}
}

func TestMemStoreEnvCellIDs(t *testing.T) {
	store := NewMemStore()

	for _, local := range []uint16{0x0102, 0x0101, 0x0103} {
		cell := &EnvCell{
			ID:    uint32(0x0001)<<16 | uint32(local),
			Frame: Frame{Orientation: mgl32.QuatIdent()},
		}
		if err := store.SaveEnvCell(cell); err != nil {
			t.Fatalf("SaveEnvCell failed: %v", err)
		}
	}
	// A cell on a different tile must not show up.
	other := &EnvCell{ID: uint32(0x0002)<<16 | 0x0101, Frame: IdentityFrame()}
	if err := store.SaveEnvCell(other); err != nil {
		t.Fatalf("SaveEnvCell failed: %v", err)
	}

	locals := store.EnvCellIDs(0x0001)
	if len(locals) != 3 || locals[0] != 0x0101 || locals[1] != 0x0102 || locals[2] != 0x0103 {
		t.Errorf("EnvCellIDs = %v, expected ascending [0x0101 0x0102 0x0103]", locals)
	}
}
