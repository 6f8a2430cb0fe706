package record

import "errors"

// ErrNotFound is returned by store reads when no record exists at the
// requested address. Graph traversal treats it (and every other read error)
// as "this branch does not extend"; the API layer maps it to a 404.
var ErrNotFound = errors.New("record not found")

// Store is the record backend surface consumed by the blueprint and
// reconciliation code. Implementations serialize access internally; callers
// must not assume fine-grained parallel access to a single backend.
type Store interface {
	// EnvCell fetches the interior cell at a full 32-bit record address.
	EnvCell(id uint32) (*EnvCell, error)
	// SaveEnvCell writes an interior cell at cell.ID.
	SaveEnvCell(cell *EnvCell) error
	// LandblockInfo fetches a tile's building/scatter metadata record.
	LandblockInfo(tile uint16) (*LandblockInfo, error)
	// SaveLandblockInfo writes a tile's metadata record.
	SaveLandblockInfo(info *LandblockInfo) error
}

// TileLister is the optional enumeration surface a backend may provide.
// When available it lets world-wide scans visit only tiles that actually
// hold a metadata record instead of probing every tile coordinate.
type TileLister interface {
	InfoTiles() ([]uint16, error)
}
