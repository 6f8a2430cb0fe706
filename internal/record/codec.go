package record

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

const (
	// EnvCellMagic identifies an encoded interior-cell record
	EnvCellMagic = "ECEL"
	// LandblockInfoMagic identifies an encoded tile metadata record
	LandblockInfoMagic = "LBIN"
	// RecordVersion is the current version of both record layouts
	RecordVersion = 1
	// maxSliceLen caps every count field in a record
	maxSliceLen = 0xFFFF
)

// recordHeader prefixes every encoded record.
type recordHeader struct {
	Magic   [4]byte
	Version uint16
}

func writeHeader(buf *bytes.Buffer, magic string) error {
	header := recordHeader{Version: RecordVersion}
	copy(header.Magic[:], magic)
	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	return nil
}

func readHeader(r io.Reader, magic string) error {
	var header recordHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return fmt.Errorf("failed to read header: %w", err)
	}
	if string(header.Magic[:]) != magic {
		return fmt.Errorf("bad magic %q, expected %q", header.Magic[:], magic)
	}
	if header.Version != RecordVersion {
		return fmt.Errorf("unsupported record version %d", header.Version)
	}
	return nil
}

func writeCount(buf *bytes.Buffer, what string, n int) error {
	if n > maxSliceLen {
		return fmt.Errorf("%s count %d exceeds 16-bit limit", what, n)
	}
	if err := binary.Write(buf, binary.LittleEndian, uint16(n)); err != nil {
		return fmt.Errorf("failed to write %s count: %w", what, err)
	}
	return nil
}

func readCount(r io.Reader, what string) (int, error) {
	var n uint16
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return 0, fmt.Errorf("failed to read %s count: %w", what, err)
	}
	return int(n), nil
}

// envCellFixed is the fixed-size leading section of an encoded env cell.
// The frame serializes as origin X,Y,Z then quaternion W,X,Y,Z.
type envCellFixed struct {
	ID            uint32
	Flags         uint32
	EnvironmentID uint16
	CellStructure uint16
	Frame         Frame
}

// EncodeEnvCell marshals an interior cell to its binary record form.
func EncodeEnvCell(cell *EnvCell) ([]byte, error) {
	var buf bytes.Buffer

	if err := writeHeader(&buf, EnvCellMagic); err != nil {
		return nil, err
	}

	fixed := envCellFixed{
		ID:            cell.ID,
		Flags:         cell.Flags,
		EnvironmentID: cell.EnvironmentID,
		CellStructure: cell.CellStructure,
		Frame:         cell.Frame,
	}
	if err := binary.Write(&buf, binary.LittleEndian, fixed); err != nil {
		return nil, fmt.Errorf("failed to write cell fields: %w", err)
	}

	if err := writeCount(&buf, "cell portal", len(cell.CellPortals)); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, cell.CellPortals); err != nil {
		return nil, fmt.Errorf("failed to write cell portals: %w", err)
	}

	if err := writeCount(&buf, "visible cell", len(cell.VisibleCells)); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, cell.VisibleCells); err != nil {
		return nil, fmt.Errorf("failed to write visible cells: %w", err)
	}

	if err := writeCount(&buf, "stab", len(cell.Stabs)); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, cell.Stabs); err != nil {
		return nil, fmt.Errorf("failed to write stabs: %w", err)
	}

	if err := binary.Write(&buf, binary.LittleEndian, cell.RestrictionObj); err != nil {
		return nil, fmt.Errorf("failed to write restriction: %w", err)
	}

	return buf.Bytes(), nil
}

// DecodeEnvCell unmarshals an interior cell from its binary record form.
func DecodeEnvCell(data []byte) (*EnvCell, error) {
	r := bytes.NewReader(data)

	if err := readHeader(r, EnvCellMagic); err != nil {
		return nil, err
	}

	var fixed envCellFixed
	if err := binary.Read(r, binary.LittleEndian, &fixed); err != nil {
		return nil, fmt.Errorf("failed to read cell fields: %w", err)
	}
	cell := &EnvCell{
		ID:            fixed.ID,
		Flags:         fixed.Flags,
		EnvironmentID: fixed.EnvironmentID,
		CellStructure: fixed.CellStructure,
		Frame:         fixed.Frame,
	}

	n, err := readCount(r, "cell portal")
	if err != nil {
		return nil, err
	}
	if n > 0 {
		cell.CellPortals = make([]CellPortal, n)
		if err := binary.Read(r, binary.LittleEndian, cell.CellPortals); err != nil {
			return nil, fmt.Errorf("failed to read cell portals: %w", err)
		}
	}

	if n, err = readCount(r, "visible cell"); err != nil {
		return nil, err
	}
	if n > 0 {
		cell.VisibleCells = make([]uint16, n)
		if err := binary.Read(r, binary.LittleEndian, cell.VisibleCells); err != nil {
			return nil, fmt.Errorf("failed to read visible cells: %w", err)
		}
	}

	if n, err = readCount(r, "stab"); err != nil {
		return nil, err
	}
	if n > 0 {
		cell.Stabs = make([]Stab, n)
		if err := binary.Read(r, binary.LittleEndian, cell.Stabs); err != nil {
			return nil, fmt.Errorf("failed to read stabs: %w", err)
		}
	}

	if err := binary.Read(r, binary.LittleEndian, &cell.RestrictionObj); err != nil {
		return nil, fmt.Errorf("failed to read restriction: %w", err)
	}

	return cell, nil
}

// EncodeLandblockInfo marshals a tile metadata record to its binary form.
func EncodeLandblockInfo(info *LandblockInfo) ([]byte, error) {
	var buf bytes.Buffer

	if err := writeHeader(&buf, LandblockInfoMagic); err != nil {
		return nil, err
	}

	if err := binary.Write(&buf, binary.LittleEndian, info.Tile); err != nil {
		return nil, fmt.Errorf("failed to write tile: %w", err)
	}
	if err := binary.Write(&buf, binary.LittleEndian, info.NumCells); err != nil {
		return nil, fmt.Errorf("failed to write cell tally: %w", err)
	}

	if err := writeCount(&buf, "object", len(info.Objects)); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, info.Objects); err != nil {
		return nil, fmt.Errorf("failed to write objects: %w", err)
	}

	if err := writeCount(&buf, "building", len(info.Buildings)); err != nil {
		return nil, err
	}
	for i := range info.Buildings {
		if err := encodeBuilding(&buf, &info.Buildings[i]); err != nil {
			return nil, fmt.Errorf("failed to write building %d: %w", i, err)
		}
	}

	return buf.Bytes(), nil
}

func encodeBuilding(buf *bytes.Buffer, b *BuildingInfo) error {
	fixed := struct {
		ModelID   uint32
		Frame     Frame
		NumLeaves uint32
	}{b.ModelID, b.Frame, b.NumLeaves}
	if err := binary.Write(buf, binary.LittleEndian, fixed); err != nil {
		return fmt.Errorf("failed to write building fields: %w", err)
	}

	if err := writeCount(buf, "portal", len(b.Portals)); err != nil {
		return err
	}
	for _, portal := range b.Portals {
		fixed := struct {
			Flags         uint16
			OtherCellID   uint16
			OtherPortalID uint16
		}{portal.Flags, portal.OtherCellID, portal.OtherPortalID}
		if err := binary.Write(buf, binary.LittleEndian, fixed); err != nil {
			return fmt.Errorf("failed to write portal fields: %w", err)
		}
		if err := writeCount(buf, "stab list", len(portal.StabList)); err != nil {
			return err
		}
		if err := binary.Write(buf, binary.LittleEndian, portal.StabList); err != nil {
			return fmt.Errorf("failed to write stab list: %w", err)
		}
	}
	return nil
}

// DecodeLandblockInfo unmarshals a tile metadata record from its binary form.
func DecodeLandblockInfo(data []byte) (*LandblockInfo, error) {
	r := bytes.NewReader(data)

	if err := readHeader(r, LandblockInfoMagic); err != nil {
		return nil, err
	}

	info := &LandblockInfo{}
	if err := binary.Read(r, binary.LittleEndian, &info.Tile); err != nil {
		return nil, fmt.Errorf("failed to read tile: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &info.NumCells); err != nil {
		return nil, fmt.Errorf("failed to read cell tally: %w", err)
	}

	n, err := readCount(r, "object")
	if err != nil {
		return nil, err
	}
	if n > 0 {
		info.Objects = make([]Stab, n)
		if err := binary.Read(r, binary.LittleEndian, info.Objects); err != nil {
			return nil, fmt.Errorf("failed to read objects: %w", err)
		}
	}

	if n, err = readCount(r, "building"); err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		building, err := decodeBuilding(r)
		if err != nil {
			return nil, fmt.Errorf("failed to read building %d: %w", i, err)
		}
		info.Buildings = append(info.Buildings, *building)
	}

	return info, nil
}

func decodeBuilding(r io.Reader) (*BuildingInfo, error) {
	var fixed struct {
		ModelID   uint32
		Frame     Frame
		NumLeaves uint32
	}
	if err := binary.Read(r, binary.LittleEndian, &fixed); err != nil {
		return nil, fmt.Errorf("failed to read building fields: %w", err)
	}
	building := &BuildingInfo{
		ModelID:   fixed.ModelID,
		Frame:     fixed.Frame,
		NumLeaves: fixed.NumLeaves,
	}

	portalCount, err := readCount(r, "portal")
	if err != nil {
		return nil, err
	}
	for i := 0; i < portalCount; i++ {
		var pf struct {
			Flags         uint16
			OtherCellID   uint16
			OtherPortalID uint16
		}
		if err := binary.Read(r, binary.LittleEndian, &pf); err != nil {
			return nil, fmt.Errorf("failed to read portal fields: %w", err)
		}
		portal := BuildingPortal{
			Flags:         pf.Flags,
			OtherCellID:   pf.OtherCellID,
			OtherPortalID: pf.OtherPortalID,
		}

		stabCount, err := readCount(r, "stab list")
		if err != nil {
			return nil, err
		}
		if stabCount > 0 {
			portal.StabList = make([]uint16, stabCount)
			if err := binary.Read(r, binary.LittleEndian, portal.StabList); err != nil {
				return nil, fmt.Errorf("failed to read stab list: %w", err)
			}
		}
		building.Portals = append(building.Portals, portal)
	}

	return building, nil
}
