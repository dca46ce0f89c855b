package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
)

// SQLiteStorage handles all database operations
type SQLiteStorage struct {
	db   *sql.DB
	path string
}

// NewSQLiteStorage opens the database at path and applies pending migrations.
func NewSQLiteStorage(ctx context.Context, path string) (*SQLiteStorage, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: database path cannot be empty", ErrInvalidInput)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite has a single writer; one connection also keeps ":memory:"
	// databases from splitting across the pool.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &SQLiteStorage{db: db, path: path}
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// validateTokenInput checks if the token input parameters are valid
func validateTokenInput(slot, token string) error {
	if slot == "" {
		return fmt.Errorf("%w: slot cannot be empty", ErrInvalidInput)
	}
	if token == "" {
		return fmt.Errorf("%w: token cannot be empty", ErrInvalidInput)
	}
	return nil
}

// StoreToken stores or replaces the token held in slot
func (s *SQLiteStorage) StoreToken(ctx context.Context, slot, token string) error {
	if err := validateTokenInput(slot, token); err != nil {
		return err
	}

	query := `
		INSERT INTO session_tokens (slot, access_token) VALUES (?, ?)
		ON CONFLICT(slot) DO UPDATE SET
			access_token = excluded.access_token,
			updated_at = CURRENT_TIMESTAMP
	`
	if _, err := s.db.ExecContext(ctx, query, slot, token); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}
	return nil
}

// GetToken retrieves the token held in slot
func (s *SQLiteStorage) GetToken(ctx context.Context, slot string) (string, error) {
	if slot == "" {
		return "", fmt.Errorf("%w: slot cannot be empty", ErrInvalidInput)
	}

	var token string
	err := s.db.QueryRowContext(ctx,
		"SELECT access_token FROM session_tokens WHERE slot = ?",
		slot).Scan(&token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("%w: no token in slot %s", ErrNotFound, slot)
		}
		return "", fmt.Errorf("failed to get token: %w", err)
	}
	return token, nil
}

// DeleteToken removes the token held in slot.
func (s *SQLiteStorage) DeleteToken(ctx context.Context, slot string) error {
	if slot == "" {
		return fmt.Errorf("%w: slot cannot be empty", ErrInvalidInput)
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM session_tokens WHERE slot = ?`, slot); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}
