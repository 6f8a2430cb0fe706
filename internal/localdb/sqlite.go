// Package localdb is a single-file SQLite record store for development and
// small deployments where running PostgreSQL is not worth it. It implements
// the same record.Store surface as the PostgreSQL layer.
package localdb

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/landforge/server/internal/landblock"
	"github.com/landforge/server/internal/record"
)

// SQLiteStore persists landblock records in one SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (creating if needed) the database file and prepares the schema.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// The modernc driver is not safe for concurrent writers on one file;
	// funnel everything through a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLiteStore{db: db}
	if err := s.initPragmas(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initPragmas() error {
	pragmas := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=NORMAL;`,
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("sqlite pragma %q: %w", p, err)
		}
	}
	return nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS landblock_records (
		record_id  INTEGER PRIMARY KEY,
		tile       INTEGER NOT NULL,
		local_id   INTEGER NOT NULL,
		payload    BLOB NOT NULL,
		iteration  INTEGER NOT NULL DEFAULT 1,
		updated_at TEXT NOT NULL DEFAULT (datetime('now'))
	);
	CREATE INDEX IF NOT EXISTS idx_landblock_records_tile ON landblock_records(tile);
	CREATE INDEX IF NOT EXISTS idx_landblock_records_local ON landblock_records(local_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("sqlite schema: %w", err)
	}
	return nil
}

// Close closes the underlying database file.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) loadPayload(id uint32) ([]byte, error) {
	var payload []byte
	err := s.db.QueryRow(
		`SELECT payload FROM landblock_records WHERE record_id = ?`, int64(id),
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("record 0x%08X: %w", id, record.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load record 0x%08X: %w", id, err)
	}
	return payload, nil
}

func (s *SQLiteStore) savePayload(id uint32, payload []byte) error {
	_, err := s.db.Exec(`
		INSERT INTO landblock_records (record_id, tile, local_id, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (record_id)
		DO UPDATE SET
			payload = excluded.payload,
			iteration = landblock_records.iteration + 1,
			updated_at = datetime('now')
	`, int64(id), int(landblock.TileOf(id)), int(landblock.LocalOf(id)), payload)
	if err != nil {
		return fmt.Errorf("failed to save record 0x%08X: %w", id, err)
	}
	return nil
}

// EnvCell loads and decodes one cell record.
func (s *SQLiteStore) EnvCell(id uint32) (*record.EnvCell, error) {
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
func (s *SQLiteStore) SaveEnvCell(cell *record.EnvCell) error {
	payload, err := record.EncodeEnvCell(cell)
	if err != nil {
		return fmt.Errorf("failed to encode cell 0x%08X: %w", cell.ID, err)
	}
	return s.savePayload(cell.ID, payload)
}

// LandblockInfo loads and decodes a tile's metadata record.
func (s *SQLiteStore) LandblockInfo(tile uint16) (*record.LandblockInfo, error) {
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
func (s *SQLiteStore) SaveLandblockInfo(info *record.LandblockInfo) error {
	payload, err := record.EncodeLandblockInfo(info)
	if err != nil {
		return fmt.Errorf("failed to encode metadata for tile 0x%04X: %w", info.Tile, err)
	}
	return s.savePayload(landblock.InfoID(info.Tile), payload)
}

// InfoTiles lists every tile that has a metadata record.
func (s *SQLiteStore) InfoTiles() ([]uint16, error) {
	rows, err := s.db.Query(
		`SELECT tile FROM landblock_records WHERE local_id = ? ORDER BY tile`,
		int(landblock.InfoLocalID),
	)
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
