package database

import (
	"database/sql"
	"fmt"
	"time"
)

// Account is an editor or admin login.
type Account struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastLogin    sql.NullTime
}

// AccountStorage handles account persistence
type AccountStorage struct {
	db *sql.DB
}

// NewAccountStorage creates a new account storage instance
func NewAccountStorage(db *sql.DB) *AccountStorage {
	return &AccountStorage{db: db}
}

// CreateAccount inserts a new account and returns it with generated fields
// populated.
func (s *AccountStorage) CreateAccount(username, email, passwordHash, role string) (*Account, error) {
	account := &Account{
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
	}
	query := `
		INSERT INTO accounts (username, email, password_hash, role)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`
	err := s.db.QueryRow(query, username, email, passwordHash, role).
		Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	return account, nil
}

// GetAccountByUsername returns the account with the given username, or
// (nil, nil) when it does not exist.
func (s *AccountStorage) GetAccountByUsername(username string) (*Account, error) {
	account := &Account{}
	query := `
		SELECT id, username, email, password_hash, role, created_at, updated_at, last_login
		FROM accounts
		WHERE username = $1
	`
	err := s.db.QueryRow(query, username).Scan(
		&account.ID,
		&account.Username,
		&account.Email,
		&account.PasswordHash,
		&account.Role,
		&account.CreatedAt,
		&account.UpdatedAt,
		&account.LastLogin,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account by username: %w", err)
	}
	return account, nil
}

// GetAccountByID returns the account with the given id, or (nil, nil) when
// it does not exist.
func (s *AccountStorage) GetAccountByID(id int64) (*Account, error) {
	account := &Account{}
	query := `
		SELECT id, username, email, password_hash, role, created_at, updated_at, last_login
		FROM accounts
		WHERE id = $1
	`
	err := s.db.QueryRow(query, id).Scan(
		&account.ID,
		&account.Username,
		&account.Email,
		&account.PasswordHash,
		&account.Role,
		&account.CreatedAt,
		&account.UpdatedAt,
		&account.LastLogin,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account by id: %w", err)
	}
	return account, nil
}

// UpdateLastLogin stamps the account's last successful login time.
func (s *AccountStorage) UpdateLastLogin(id int64) error {
	query := `
		UPDATE accounts
		SET last_login = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`
	if _, err := s.db.Exec(query, id); err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}
