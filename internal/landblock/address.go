package landblock

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// World layout constants
const (
	// LandCellSide is the edge length of one outdoor land cell in world units
	LandCellSide = 24.0
	// LandCellGrid is the number of land cells along each axis of a tile (8x8 grid)
	LandCellGrid = 8
	// TileSide is the edge length of one tile in world units (8 cells of 24 units)
	TileSide = LandCellSide * LandCellGrid
	// TileAxisCount is the number of tile coordinates along each world axis (0x00-0xFF)
	TileAxisCount = 256
)

// Local-id ranges. The 16-bit local half of a record address is a closed
// partition: land cells, interior env cells, the info record, and the
// terrain record. Ids between LastLandCell and FirstEnvCell are unused.
const (
	// FirstLandCell is the lowest outdoor land-cell local id
	FirstLandCell uint16 = 0x0001
	// LastLandCell is the highest outdoor land-cell local id (64 cells total)
	LastLandCell uint16 = 0x0040
	// FirstEnvCell is the lowest interior env-cell local id
	FirstEnvCell uint16 = 0x0100
	// LastEnvCell is the highest interior env-cell local id
	LastEnvCell uint16 = 0xFFFD
	// InfoLocalID is the local id of a tile's building/scatter metadata record
	InfoLocalID uint16 = 0xFFFE
	// TerrainLocalID is the local id of a tile's raw terrain record
	TerrainLocalID uint16 = 0xFFFF
)

// MakeRecordID composes a full 32-bit record address from a tile id and a local id.
// Layout: (tile << 16) | local
func MakeRecordID(tile, local uint16) uint32 {
	return uint32(tile)<<16 | uint32(local)
}

// TileOf extracts the tile id from a full record address.
func TileOf(id uint32) uint16 {
	return uint16(id >> 16)
}

// LocalOf extracts the local id from a full record address.
func LocalOf(id uint32) uint16 {
	return uint16(id & 0xFFFF)
}

// InfoID returns the full address of a tile's metadata record.
func InfoID(tile uint16) uint32 {
	return MakeRecordID(tile, InfoLocalID)
}

// TerrainID returns the full address of a tile's terrain record.
func TerrainID(tile uint16) uint32 {
	return MakeRecordID(tile, TerrainLocalID)
}

// IsEnvCellLocal reports whether a local id addresses an interior env cell.
func IsEnvCellLocal(local uint16) bool {
	return local >= FirstEnvCell && local <= LastEnvCell
}

// IsLandCellLocal reports whether a local id addresses an outdoor land cell.
func IsLandCellLocal(local uint16) bool {
	return local >= FirstLandCell && local <= LastLandCell
}

// IsEnvCellID reports whether a full record address points at an interior env cell.
func IsEnvCellID(id uint32) bool {
	return IsEnvCellLocal(LocalOf(id))
}

// LandCellLocal converts outdoor grid coordinates to a land-cell local id.
// Formula: id = cellX*8 + cellY + 1
func LandCellLocal(cellX, cellY int) uint16 {
	return uint16(cellX*LandCellGrid + cellY + 1)
}

// LandCellCoords decodes a land-cell local id back to outdoor grid coordinates.
func LandCellCoords(local uint16) (cellX, cellY int) {
	n := int(local) - 1
	return n / LandCellGrid, n % LandCellGrid
}

// LandCellAt returns the outdoor grid coordinate containing a tile-local
// position. Each axis is floor(local/24), clamped to [0, 7] so positions on
// or past the tile edge still land in a valid cell.
func LandCellAt(localX, localY float32) (cellX, cellY int) {
	return clampCellCoord(int(localX / LandCellSide)), clampCellCoord(int(localY / LandCellSide))
}

func clampCellCoord(c int) int {
	if c < 0 {
		return 0
	}
	if c >= LandCellGrid {
		return LandCellGrid - 1
	}
	return c
}

// TileID composes a tile id from coarse world coordinates.
// Layout: (tileX << 8) | tileY
func TileID(tileX, tileY uint8) uint16 {
	return uint16(tileX)<<8 | uint16(tileY)
}

// TileCoords decodes a tile id back to coarse world coordinates.
func TileCoords(tile uint16) (tileX, tileY uint8) {
	return uint8(tile >> 8), uint8(tile & 0xFF)
}

// TileOrigin returns the world-space origin (southwest corner) of a tile.
func TileOrigin(tile uint16) mgl32.Vec3 {
	x, y := TileCoords(tile)
	return mgl32.Vec3{float32(x) * TileSide, float32(y) * TileSide, 0}
}

// ToLocal converts a world-space position into the tile-local frame of the
// given tile. Only X and Y shift; Z is shared between the two frames.
func ToLocal(tile uint16, world mgl32.Vec3) mgl32.Vec3 {
	return world.Sub(TileOrigin(tile))
}

// ToWorld converts a tile-local position back into world space.
func ToWorld(tile uint16, local mgl32.Vec3) mgl32.Vec3 {
	return local.Add(TileOrigin(tile))
}

// TileAt returns the tile whose footprint contains a world-space position.
// Positions outside the world are clamped to the nearest edge tile.
func TileAt(worldX, worldY float32) uint16 {
	return TileID(clampTileCoord(int(worldX/TileSide)), clampTileCoord(int(worldY/TileSide)))
}

func clampTileCoord(c int) uint8 {
	if c < 0 {
		return 0
	}
	if c >= TileAxisCount {
		return TileAxisCount - 1
	}
	return uint8(c)
}

// ValidateLocalID checks that a local id falls inside one of the partition's
// defined ranges. The gap between land cells and env cells is invalid.
func ValidateLocalID(local uint16) error {
	switch {
	case IsLandCellLocal(local), IsEnvCellLocal(local):
		return nil
	case local == InfoLocalID, local == TerrainLocalID:
		return nil
	default:
		return fmt.Errorf("local id 0x%04X is outside every defined range", local)
	}
}
