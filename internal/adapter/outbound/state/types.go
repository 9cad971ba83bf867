// Package state provides file-based persistence for the storefront session.
//
// The credentials.json file stores one bearer credential per profile so that
// a login survives process restarts. This package provides atomic writes,
// file locking, and backup functionality.
package state

import "time"

// DefaultProfile is the profile used when none is configured.
const DefaultProfile = "default"

// CredentialFile is the top-level structure persisted in credentials.json.
type CredentialFile struct {
	// Version is the schema version for forward compatibility. Currently "1".
	Version string `json:"version"`

	// Profiles maps a profile name to its stored credential.
	Profiles map[string]ProfileEntry `json:"profiles"`

	// UpdatedAt is when this file was last modified.
	UpdatedAt time.Time `json:"updated_at"`
}

// ProfileEntry is the credential stored for one profile.
type ProfileEntry struct {
	// Credential is the opaque bearer token.
	Credential string `json:"credential"`

	// BaseURL records which backend issued the credential.
	BaseURL string `json:"base_url,omitempty"`

	// SavedAt is when the credential was written.
	SavedAt time.Time `json:"saved_at"`
}

func newCredentialFile() *CredentialFile {
	return &CredentialFile{
		Version:  "1",
		Profiles: map[string]ProfileEntry{},
	}
}
