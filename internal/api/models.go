package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/landforge/server/internal/record"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("Failed to encode JSON response: %v", err)
	}
}

// respondWithError writes a JSON error response.
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

// parseTileID parses a 4-digit hex tile id from a path segment.
func parseTileID(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid tile id %q (expected 4 hex digits)", s)
	}
	return uint16(v), nil
}

// parseLocalID parses a 4-digit hex local record id from a path segment.
func parseLocalID(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid local id %q (expected 4 hex digits)", s)
	}
	return uint16(v), nil
}

// parseModelID parses an 8-digit hex model id.
func parseModelID(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid model id %q (expected 8 hex digits)", s)
	}
	return uint32(v), nil
}

func formatTile(tile uint16) string { return fmt.Sprintf("%04X", tile) }

func formatLocal(local uint16) string { return fmt.Sprintf("%04X", local) }

func formatModel(modelID uint32) string { return fmt.Sprintf("%08X", modelID) }

// frameJSON is the wire form of a record.Frame. The orientation is W,X,Y,Z.
type frameJSON struct {
	Origin      [3]float32 `json:"origin"`
	Orientation [4]float32 `json:"orientation"`
}

func toFrameJSON(f record.Frame) frameJSON {
	return frameJSON{
		Origin:      [3]float32{f.Origin.X(), f.Origin.Y(), f.Origin.Z()},
		Orientation: [4]float32{f.Orientation.W, f.Orientation.V[0], f.Orientation.V[1], f.Orientation.V[2]},
	}
}

func (f frameJSON) toFrame() record.Frame {
	return record.Frame{
		Origin:      mgl32.Vec3{f.Origin[0], f.Origin[1], f.Origin[2]},
		Orientation: mgl32.Quat{W: f.Orientation[0], V: mgl32.Vec3{f.Orientation[1], f.Orientation[2], f.Orientation[3]}},
	}
}

type stabJSON struct {
	ModelID string    `json:"model_id"`
	Frame   frameJSON `json:"frame"`
}

func toStabJSON(s record.Stab) stabJSON {
	return stabJSON{ModelID: formatModel(s.ModelID), Frame: toFrameJSON(s.Frame)}
}

type buildingPortalJSON struct {
	Flags         uint16   `json:"flags"`
	OtherCellID   string   `json:"other_cell_id"`
	OtherPortalID uint16   `json:"other_portal_id"`
	StabList      []string `json:"stab_list"`
}

func toBuildingPortalJSON(p record.BuildingPortal) buildingPortalJSON {
	out := buildingPortalJSON{
		Flags:         p.Flags,
		OtherCellID:   formatLocal(p.OtherCellID),
		OtherPortalID: p.OtherPortalID,
		StabList:      make([]string, 0, len(p.StabList)),
	}
	for _, id := range p.StabList {
		out.StabList = append(out.StabList, formatLocal(id))
	}
	return out
}

type buildingJSON struct {
	ModelID   string               `json:"model_id"`
	Frame     frameJSON            `json:"frame"`
	NumLeaves uint32               `json:"num_leaves"`
	Portals   []buildingPortalJSON `json:"portals"`
}

func toBuildingJSON(b record.BuildingInfo) buildingJSON {
	out := buildingJSON{
		ModelID:   formatModel(b.ModelID),
		Frame:     toFrameJSON(b.Frame),
		NumLeaves: b.NumLeaves,
		Portals:   make([]buildingPortalJSON, 0, len(b.Portals)),
	}
	for _, p := range b.Portals {
		out.Portals = append(out.Portals, toBuildingPortalJSON(p))
	}
	return out
}

type cellPortalJSON struct {
	Flags         uint16 `json:"flags"`
	PolygonID     uint16 `json:"polygon_id"`
	OtherCellID   string `json:"other_cell_id"`
	OtherPortalID uint16 `json:"other_portal_id"`
}

type envCellJSON struct {
	ID             string           `json:"id"`
	Flags          uint32           `json:"flags"`
	EnvironmentID  uint16           `json:"environment_id"`
	CellStructure  uint16           `json:"cell_structure"`
	Frame          frameJSON        `json:"frame"`
	CellPortals    []cellPortalJSON `json:"cell_portals"`
	VisibleCells   []string         `json:"visible_cells"`
	Stabs          []stabJSON       `json:"stabs"`
	RestrictionObj uint32           `json:"restriction_obj"`
}

func toEnvCellJSON(c *record.EnvCell) envCellJSON {
	out := envCellJSON{
		ID:             formatModel(c.ID),
		Flags:          c.Flags,
		EnvironmentID:  c.EnvironmentID,
		CellStructure:  c.CellStructure,
		Frame:          toFrameJSON(c.Frame),
		CellPortals:    make([]cellPortalJSON, 0, len(c.CellPortals)),
		VisibleCells:   make([]string, 0, len(c.VisibleCells)),
		Stabs:          make([]stabJSON, 0, len(c.Stabs)),
		RestrictionObj: c.RestrictionObj,
	}
	for _, p := range c.CellPortals {
		out.CellPortals = append(out.CellPortals, cellPortalJSON{
			Flags:         p.Flags,
			PolygonID:     p.PolygonID,
			OtherCellID:   formatLocal(p.OtherCellID),
			OtherPortalID: p.OtherPortalID,
		})
	}
	for _, id := range c.VisibleCells {
		out.VisibleCells = append(out.VisibleCells, formatLocal(id))
	}
	for _, s := range c.Stabs {
		out.Stabs = append(out.Stabs, toStabJSON(s))
	}
	return out
}

type landblockJSON struct {
	Tile      string         `json:"tile"`
	NumCells  uint32         `json:"num_cells"`
	Objects   []stabJSON     `json:"objects"`
	Buildings []buildingJSON `json:"buildings"`
}

func toLandblockJSON(info *record.LandblockInfo) landblockJSON {
	out := landblockJSON{
		Tile:      formatTile(info.Tile),
		NumCells:  info.NumCells,
		Objects:   make([]stabJSON, 0, len(info.Objects)),
		Buildings: make([]buildingJSON, 0, len(info.Buildings)),
	}
	for _, s := range info.Objects {
		out.Objects = append(out.Objects, toStabJSON(s))
	}
	for _, b := range info.Buildings {
		out.Buildings = append(out.Buildings, toBuildingJSON(b))
	}
	return out
}

// staticObjectJSON is one entry of an edited object list as submitted by the
// editing client. Origins are world-space.
type staticObjectJSON struct {
	ModelID     string     `json:"model_id"`
	IsSetup     bool       `json:"is_setup"`
	Origin      [3]float32 `json:"origin"`
	Orientation [4]float32 `json:"orientation"`
	Scale       [3]float32 `json:"scale"`
}

func (o staticObjectJSON) toStaticObject() (record.StaticObject, error) {
	modelID, err := parseModelID(o.ModelID)
	if err != nil {
		return record.StaticObject{}, err
	}
	scale := mgl32.Vec3{o.Scale[0], o.Scale[1], o.Scale[2]}
	if scale.Len() == 0 {
		scale = mgl32.Vec3{1, 1, 1}
	}
	return record.StaticObject{
		ModelID:     modelID,
		IsSetup:     o.IsSetup,
		Origin:      mgl32.Vec3{o.Origin[0], o.Origin[1], o.Origin[2]},
		Orientation: mgl32.Quat{W: o.Orientation[0], V: mgl32.Vec3{o.Orientation[1], o.Orientation[2], o.Orientation[3]}},
		Scale:       scale,
	}, nil
}
