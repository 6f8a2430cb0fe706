// Package database holds the PostgreSQL storage layer: landblock records,
// editor accounts, and tile claims.
package database

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/landforge/server/internal/config"
)

// Connect opens a PostgreSQL connection pool using the server configuration
// and verifies it with a ping.
func Connect(cfg *config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// Bootstrap creates the schema when it does not exist yet. The statements
// are idempotent so running them on every startup is safe.
func Bootstrap(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS landblock_records (
			record_id  BIGINT PRIMARY KEY,
			tile       INTEGER NOT NULL,
			local_id   INTEGER NOT NULL,
			payload    BYTEA NOT NULL,
			iteration  INTEGER NOT NULL DEFAULT 1,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_landblock_records_tile ON landblock_records(tile)`,
		`CREATE INDEX IF NOT EXISTS idx_landblock_records_local ON landblock_records(local_id)`,
		`CREATE TABLE IF NOT EXISTS accounts (
			id            BIGSERIAL PRIMARY KEY,
			username      VARCHAR(50) UNIQUE NOT NULL,
			email         VARCHAR(255) UNIQUE NOT NULL,
			password_hash VARCHAR(255) NOT NULL,
			role          VARCHAR(20) NOT NULL DEFAULT 'editor',
			created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			last_login    TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS tile_claims (
			id         BIGSERIAL PRIMARY KEY,
			account_id BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			x0         INTEGER NOT NULL,
			y0         INTEGER NOT NULL,
			x1         INTEGER NOT NULL,
			y1         INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			expires_at TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tile_claims_account ON tile_claims(account_id)`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to bootstrap schema: %w", err)
		}
	}
	return nil
}
