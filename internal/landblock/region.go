package landblock

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Landmark is a named point of interest, pinned to a tile-local position.
// Landmarks are presentation data for editor clients; the reconciliation
// core never reads them.
type Landmark struct {
	Name string  `yaml:"name" json:"name"`
	Tile uint16  `yaml:"tile" json:"tile"`
	X    float32 `yaml:"x" json:"x"`
	Y    float32 `yaml:"y" json:"y"`
}

// Region describes the populated extent of the world and its landmark
// catalog. Tile coordinates outside [0, MaxTileX] x [0, MaxTileY] are
// addressable but considered empty for streaming and claim purposes.
type Region struct {
	Name     string     `yaml:"name" json:"name"`
	MaxTileX uint8      `yaml:"max_tile_x" json:"max_tile_x"`
	MaxTileY uint8      `yaml:"max_tile_y" json:"max_tile_y"`
	Landmarks []Landmark `yaml:"landmarks" json:"landmarks"`
}

// DefaultRegion returns the built-in region used when no manifest file is
// configured.
func DefaultRegion() *Region {
	return &Region{
		Name:     "Greenvale",
		MaxTileX: 0xFF,
		MaxTileY: 0xFF,
		Landmarks: []Landmark{
			{Name: "Harborgate", Tile: TileID(0x10, 0x20), X: 96, Y: 96},
			{Name: "Millstone Crossing", Tile: TileID(0x42, 0x42), X: 48, Y: 120},
			{Name: "Old Quarry", Tile: TileID(0x80, 0x15), X: 144, Y: 24},
		},
	}
}

// LoadRegion reads a region manifest from a YAML file. An empty path returns
// the default region.
func LoadRegion(path string) (*Region, error) {
	if path == "" {
		return DefaultRegion(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read region manifest: %w", err)
	}

	var region Region
	if err := yaml.Unmarshal(data, &region); err != nil {
		return nil, fmt.Errorf("failed to parse region manifest: %w", err)
	}

	if err := region.Validate(); err != nil {
		return nil, err
	}
	return &region, nil
}

// Validate checks a region manifest for internal consistency.
func (r *Region) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("region name is required")
	}
	for _, lm := range r.Landmarks {
		if lm.Name == "" {
			return fmt.Errorf("landmark with empty name in region %s", r.Name)
		}
		if !r.TileValid(lm.Tile) {
			return fmt.Errorf("landmark %s is on tile 0x%04X outside the region extent", lm.Name, lm.Tile)
		}
		if lm.X < 0 || lm.X >= TileSide || lm.Y < 0 || lm.Y >= TileSide {
			return fmt.Errorf("landmark %s has local position (%f, %f) outside its tile", lm.Name, lm.X, lm.Y)
		}
	}
	return nil
}

// TileValid reports whether a tile id lies inside the region extent.
func (r *Region) TileValid(tile uint16) bool {
	x, y := TileCoords(tile)
	return x <= r.MaxTileX && y <= r.MaxTileY
}

// NearestLandmark returns the landmark closest to a world position, by
// planar distance, or false when the region has no landmarks.
func (r *Region) NearestLandmark(worldX, worldY float32) (Landmark, bool) {
	if len(r.Landmarks) == 0 {
		return Landmark{}, false
	}

	best := 0
	bestDist := float32(-1)
	for i, lm := range r.Landmarks {
		origin := TileOrigin(lm.Tile)
		dx := origin.X() + lm.X - worldX
		dy := origin.Y() + lm.Y - worldY
		dist := dx*dx + dy*dy
		if bestDist < 0 || dist < bestDist {
			bestDist = dist
			best = i
		}
	}
	return r.Landmarks[best], true
}
