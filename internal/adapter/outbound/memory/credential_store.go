// Package memory provides in-memory implementations of outbound ports.
package memory

import (
	"context"
	"sync"

	"github.com/storefront-dev/storefront/internal/domain/session"
)

// Compile-time interface check.
var _ session.CredentialStore = (*CredentialStore)(nil)

// CredentialStore implements session.CredentialStore in memory.
// Thread-safe for concurrent access. Nothing survives the process; used for
// tests and for the "memory" session store setting.
type CredentialStore struct {
	mu         sync.RWMutex
	credential string
	saves      int

	// SaveErr, when set, is returned by Save without storing anything.
	SaveErr error
	// ClearErr, when set, is returned by Clear after the credential is dropped.
	ClearErr error
}

// NewCredentialStore creates a store holding credential ("" for empty).
func NewCredentialStore(credential string) *CredentialStore {
	return &CredentialStore{credential: credential}
}

// Load returns the stored credential or session.ErrNoCredential.
func (s *CredentialStore) Load(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.credential == "" {
		return "", session.ErrNoCredential
	}
	return s.credential, nil
}

// Save replaces the stored credential.
func (s *CredentialStore) Save(_ context.Context, credential string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.credential = credential
	s.saves++
	return nil
}

// Clear drops the stored credential.
func (s *CredentialStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credential = ""
	return s.ClearErr
}

// Saves returns how many successful Save calls were made.
func (s *CredentialStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

// Current returns the stored credential without the not-found error.
func (s *CredentialStore) Current() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.credential
}
