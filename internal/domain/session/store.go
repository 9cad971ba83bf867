package session

import (
	"context"
	"errors"
)

// CredentialStore persists the bearer credential across process restarts.
// This interface is defined in the domain to avoid circular imports.
// Implementations: file (default), SQLite, Redis, in-memory (test).
type CredentialStore interface {
	// Load returns the persisted credential.
	// Returns ErrNoCredential if none is stored.
	Load(ctx context.Context) (string, error)

	// Save replaces the persisted credential.
	Save(ctx context.Context, credential string) error

	// Clear removes the persisted credential. Clearing an empty store is not an error.
	Clear(ctx context.Context) error
}

// ErrNoCredential is returned when no credential is persisted.
var ErrNoCredential = errors.New("no credential stored")
