package database

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/landforge/server/internal/landblock"
)

// TileClaim reserves an inclusive rectangle of tiles for one account. Edits
// to a claimed tile are only accepted from its owner (admins bypass claims).
type TileClaim struct {
	ID        int64        `json:"id"`
	AccountID int64        `json:"account_id"`
	X0        int          `json:"x0"`
	Y0        int          `json:"y0"`
	X1        int          `json:"x1"`
	Y1        int          `json:"y1"`
	CreatedAt time.Time    `json:"created_at"`
	ExpiresAt sql.NullTime `json:"-"`
}

// ClaimConflictError is returned when a new claim rectangle overlaps claims
// held by other accounts.
type ClaimConflictError struct {
	ConflictIDs []int64
}

func (e *ClaimConflictError) Error() string {
	return fmt.Sprintf("claim overlaps %d existing claim(s)", len(e.ConflictIDs))
}

// ClaimStorage handles tile claim persistence
type ClaimStorage struct {
	db *sql.DB
}

// NewClaimStorage creates a new claim storage instance
func NewClaimStorage(db *sql.DB) *ClaimStorage {
	return &ClaimStorage{db: db}
}

// CreateClaim inserts a claim after checking it against existing unexpired
// claims of other accounts. Overlapping your own claims is allowed.
func (s *ClaimStorage) CreateClaim(accountID int64, x0, y0, x1, y1 int, expiresAt *time.Time) (*TileClaim, error) {
	if x0 > x1 || y0 > y1 {
		return nil, fmt.Errorf("claim rectangle is inverted: (%d,%d)-(%d,%d)", x0, y0, x1, y1)
	}
	if x0 < 0 || y0 < 0 || x1 >= landblock.TileAxisCount || y1 >= landblock.TileAxisCount {
		return nil, fmt.Errorf("claim rectangle is out of range: (%d,%d)-(%d,%d)", x0, y0, x1, y1)
	}

	conflictQuery := `
		SELECT id
		FROM tile_claims
		WHERE account_id != $1
		  AND (expires_at IS NULL OR expires_at > CURRENT_TIMESTAMP)
		  AND x0 <= $4 AND x1 >= $2
		  AND y0 <= $5 AND y1 >= $3
	`
	rows, err := s.db.Query(conflictQuery, accountID, x0, y0, x1, y1)
	if err != nil {
		return nil, fmt.Errorf("failed to check claim conflicts: %w", err)
	}
	var conflicts []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan conflicting claim: %w", err)
		}
		conflicts = append(conflicts, id)
	}
	if closeErr := rows.Close(); closeErr != nil {
		log.Printf("Warning: failed to close claim conflict rows: %v", closeErr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate claim conflicts: %w", err)
	}
	if len(conflicts) > 0 {
		return nil, &ClaimConflictError{ConflictIDs: conflicts}
	}

	claim := &TileClaim{
		AccountID: accountID,
		X0:        x0,
		Y0:        y0,
		X1:        x1,
		Y1:        y1,
	}
	var expires sql.NullTime
	if expiresAt != nil {
		expires = sql.NullTime{Time: *expiresAt, Valid: true}
	}
	claim.ExpiresAt = expires

	insertQuery := `
		INSERT INTO tile_claims (account_id, x0, y0, x1, y1, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	err = s.db.QueryRow(insertQuery, accountID, x0, y0, x1, y1, expires).
		Scan(&claim.ID, &claim.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create claim: %w", err)
	}
	return claim, nil
}

// ListClaims returns every unexpired claim of one account.
func (s *ClaimStorage) ListClaims(accountID int64) ([]*TileClaim, error) {
	query := `
		SELECT id, account_id, x0, y0, x1, y1, created_at, expires_at
		FROM tile_claims
		WHERE account_id = $1
		  AND (expires_at IS NULL OR expires_at > CURRENT_TIMESTAMP)
		ORDER BY id
	`
	rows, err := s.db.Query(query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list claims: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			log.Printf("Warning: failed to close claim rows: %v", closeErr)
		}
	}()

	var claims []*TileClaim
	for rows.Next() {
		claim := &TileClaim{}
		if err := rows.Scan(&claim.ID, &claim.AccountID, &claim.X0, &claim.Y0,
			&claim.X1, &claim.Y1, &claim.CreatedAt, &claim.ExpiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan claim: %w", err)
		}
		claims = append(claims, claim)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate claims: %w", err)
	}
	return claims, nil
}

// DeleteClaim removes one claim owned by the account. Returns false when no
// such claim exists.
func (s *ClaimStorage) DeleteClaim(id, accountID int64) (bool, error) {
	result, err := s.db.Exec(`DELETE FROM tile_claims WHERE id = $1 AND account_id = $2`, id, accountID)
	if err != nil {
		return false, fmt.Errorf("failed to delete claim: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to count deleted claims: %w", err)
	}
	return affected > 0, nil
}

// ClaimCovering reports whether the account holds an unexpired claim whose
// rectangle contains the tile.
func (s *ClaimStorage) ClaimCovering(tile uint16, accountID int64) (bool, error) {
	tileX, tileY := landblock.TileCoords(tile)
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM tile_claims
			WHERE account_id = $1
			  AND (expires_at IS NULL OR expires_at > CURRENT_TIMESTAMP)
			  AND x0 <= $2 AND x1 >= $2
			  AND y0 <= $3 AND y1 >= $3
		)
	`
	var covered bool
	err := s.db.QueryRow(query, accountID, int(tileX), int(tileY)).Scan(&covered)
	if err != nil {
		return false, fmt.Errorf("failed to check claim coverage: %w", err)
	}
	return covered, nil
}

// Claimed reports whether any account holds an unexpired claim containing
// the tile.
func (s *ClaimStorage) Claimed(tile uint16) (bool, int64, error) {
	tileX, tileY := landblock.TileCoords(tile)
	query := `
		SELECT account_id
		FROM tile_claims
		WHERE (expires_at IS NULL OR expires_at > CURRENT_TIMESTAMP)
		  AND x0 <= $1 AND x1 >= $1
		  AND y0 <= $2 AND y1 >= $2
		LIMIT 1
	`
	var accountID int64
	err := s.db.QueryRow(query, int(tileX), int(tileY)).Scan(&accountID)
	if err == sql.ErrNoRows {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, fmt.Errorf("failed to check tile claim: %w", err)
	}
	return true, accountID, nil
}
