// Package sqlitestore persists session credentials in a SQLite database.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/storefront-dev/storefront/internal/domain/session"
)

// Compile-time interface check.
var _ session.CredentialStore = (*CredentialStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS credentials (
	profile    TEXT PRIMARY KEY,
	credential TEXT NOT NULL,
	saved_at   TEXT NOT NULL
)`

// CredentialStore keeps one credential per profile in a SQLite table.
type CredentialStore struct {
	db      *sql.DB
	profile string
}

// Open opens (or creates) the database at path and prepares the schema.
func Open(ctx context.Context, path, profile string) (*CredentialStore, error) {
	if profile == "" {
		profile = "default"
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows a single writer; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &CredentialStore{db: db, profile: profile}, nil
}

// Load returns the credential of the configured profile.
func (s *CredentialStore) Load(ctx context.Context) (string, error) {
	var credential string
	err := s.db.QueryRowContext(ctx,
		`SELECT credential FROM credentials WHERE profile = ?`, s.profile,
	).Scan(&credential)
	if errors.Is(err, sql.ErrNoRows) {
		return "", session.ErrNoCredential
	}
	if err != nil {
		return "", fmt.Errorf("sqlite load credential: %w", err)
	}
	if credential == "" {
		return "", session.ErrNoCredential
	}
	return credential, nil
}

// Save upserts the credential of the configured profile.
func (s *CredentialStore) Save(ctx context.Context, credential string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (profile, credential, saved_at) VALUES (?, ?, ?)
		ON CONFLICT(profile) DO UPDATE SET credential = excluded.credential, saved_at = excluded.saved_at`,
		s.profile, credential, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("sqlite save credential: %w", err)
	}
	return nil
}

// Clear deletes the credential of the configured profile.
func (s *CredentialStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE profile = ?`, s.profile); err != nil {
		return fmt.Errorf("sqlite clear credential: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *CredentialStore) Close() error {
	return s.db.Close()
}
