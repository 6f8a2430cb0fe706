package database

import (
	"database/sql"
	"fmt"

	"github.com/landforge/server/internal/landblock"
	"github.com/landforge/server/internal/record"
)

// RecordStorage persists landblock records in PostgreSQL. Every record is
// one row keyed by its 32-bit id, with the encoded payload as a byte column
// and an iteration counter bumped on each save.
type RecordStorage struct {
	db *sql.DB
}

// NewRecordStorage creates a new record storage instance
func NewRecordStorage(db *sql.DB) *RecordStorage {
	return &RecordStorage{db: db}
}

func (s *RecordStorage) loadPayload(id uint32) ([]byte, error) {
	var payload []byte
	query := `
		SELECT payload
		FROM landblock_records
		WHERE record_id = $1
	`
	err := s.db.QueryRow(query, int64(id)).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("record 0x%08X: %w", id, record.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load record 0x%08X: %w", id, err)
	}
	return payload, nil
}

func (s *RecordStorage) savePayload(id uint32, payload []byte) error {
	query := `
		INSERT INTO landblock_records (record_id, tile, local_id, payload)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (record_id)
		DO UPDATE SET
			payload = EXCLUDED.payload,
			iteration = landblock_records.iteration + 1,
			updated_at = CURRENT_TIMESTAMP
	`
	_, err := s.db.Exec(query, int64(id), int(landblock.TileOf(id)), int(landblock.LocalOf(id)), payload)
	if err != nil {
		return fmt.Errorf("failed to save record 0x%08X: %w", id, err)
	}
	return nil
}

// EnvCell loads and decodes one cell record.
func (s *RecordStorage) EnvCell(id uint32) (*record.EnvCell, error) {
	payload, err := s.loadPayload(id)
	if err != nil {
		return nil, err
	}
	cell, err := record.DecodeEnvCell(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode cell 0x%08X: %w", id, err)
	}
	return cell, nil
}

// SaveEnvCell encodes and upserts one cell record.
func (s *RecordStorage) SaveEnvCell(cell *record.EnvCell) error {
	payload, err := record.EncodeEnvCell(cell)
	if err != nil {
		return fmt.Errorf("failed to encode cell 0x%08X: %w", cell.ID, err)
	}
	return s.savePayload(cell.ID, payload)
}

// LandblockInfo loads and decodes a tile's metadata record.
func (s *RecordStorage) LandblockInfo(tile uint16) (*record.LandblockInfo, error) {
	id := landblock.InfoID(tile)
	payload, err := s.loadPayload(id)
	if err != nil {
		return nil, err
	}
	info, err := record.DecodeLandblockInfo(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode metadata 0x%08X: %w", id, err)
	}
	return info, nil
}

// SaveLandblockInfo encodes and upserts a tile's metadata record.
func (s *RecordStorage) SaveLandblockInfo(info *record.LandblockInfo) error {
	payload, err := record.EncodeLandblockInfo(info)
	if err != nil {
		return fmt.Errorf("failed to encode metadata for tile 0x%04X: %w", info.Tile, err)
	}
	return s.savePayload(landblock.InfoID(info.Tile), payload)
}

// InfoTiles lists every tile that has a metadata record, so world scans can
// skip the empty coordinate space.
func (s *RecordStorage) InfoTiles() ([]uint16, error) {
	query := `
		SELECT tile
		FROM landblock_records
		WHERE local_id = $1
		ORDER BY tile
	`
	rows, err := s.db.Query(query, int(landblock.InfoLocalID))
	if err != nil {
		return nil, fmt.Errorf("failed to list metadata tiles: %w", err)
	}
	defer rows.Close()

	var tiles []uint16
	for rows.Next() {
		var tile int
		if err := rows.Scan(&tile); err != nil {
			return nil, fmt.Errorf("failed to scan tile: %w", err)
		}
		tiles = append(tiles, uint16(tile))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tiles: %w", err)
	}
	return tiles, nil
}

// RecordIteration returns how many times a record has been written, zero if
// it does not exist.
func (s *RecordStorage) RecordIteration(id uint32) (int, error) {
	var iteration int
	query := `
		SELECT iteration
		FROM landblock_records
		WHERE record_id = $1
	`
	err := s.db.QueryRow(query, int64(id)).Scan(&iteration)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load iteration of record 0x%08X: %w", id, err)
	}
	return iteration, nil
}
