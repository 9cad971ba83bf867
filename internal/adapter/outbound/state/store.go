package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/storefront-dev/storefront/internal/domain/session"
)

// Compile-time interface check.
var _ session.CredentialStore = (*FileCredentialStore)(nil)

// FileCredentialStore keeps the bearer credential of one profile in a JSON
// file shared by all profiles. Writes are atomic (write-tmp-then-rename) and
// serialized with a mutex in-process and flock across processes.
type FileCredentialStore struct {
	path    string
	profile string
	baseURL string
	mu      sync.Mutex
	logger  *slog.Logger
}

// NewFileCredentialStore creates a store for profile in the file at path.
// baseURL is recorded next to the credential for diagnostics.
func NewFileCredentialStore(path, profile, baseURL string, logger *slog.Logger) *FileCredentialStore {
	if profile == "" {
		profile = DefaultProfile
	}
	return &FileCredentialStore{
		path:    path,
		profile: profile,
		baseURL: baseURL,
		logger:  logger,
	}
}

// Load returns the credential of the configured profile.
// Returns session.ErrNoCredential when the file or the profile is missing.
// Warns if the file has permissions more open than 0600.
func (s *FileCredentialStore) Load(_ context.Context) (string, error) {
	f, err := s.read()
	if err != nil {
		return "", err
	}
	entry, ok := f.Profiles[s.profile]
	if !ok || entry.Credential == "" {
		return "", session.ErrNoCredential
	}
	return entry.Credential, nil
}

// Save stores credential for the configured profile.
func (s *FileCredentialStore) Save(_ context.Context, credential string) error {
	return s.update(func(f *CredentialFile) {
		f.Profiles[s.profile] = ProfileEntry{
			Credential: credential,
			BaseURL:    s.baseURL,
			SavedAt:    time.Now().UTC(),
		}
	})
}

// Clear removes the credential of the configured profile. Other profiles
// are kept.
func (s *FileCredentialStore) Clear(_ context.Context) error {
	if !s.Exists() {
		return nil
	}
	return s.update(func(f *CredentialFile) {
		delete(f.Profiles, s.profile)
	})
}

// Exists returns true if the credential file exists on disk.
func (s *FileCredentialStore) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Path returns the configured file path.
func (s *FileCredentialStore) Path() string {
	return s.path
}

// Profile returns the configured profile name.
func (s *FileCredentialStore) Profile() string {
	return s.profile
}

func (s *FileCredentialStore) read() (*CredentialFile, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, session.ErrNoCredential
		}
		return nil, fmt.Errorf("read credential file: %w", err)
	}

	// Unix permission bits are meaningless on Windows.
	if runtime.GOOS != "windows" {
		if info, statErr := os.Stat(s.path); statErr == nil {
			mode := info.Mode().Perm()
			if mode&0077 != 0 {
				s.logger.Warn("credential file has too-open permissions, should be 0600",
					"path", s.path, "current_mode", fmt.Sprintf("%04o", mode))
			}
		}
	}

	f := newCredentialFile()
	if err := json.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("parse credential file: %w", err)
	}
	if f.Profiles == nil {
		f.Profiles = map[string]ProfileEntry{}
	}
	return f, nil
}

// update applies fn to the current file contents and writes the result.
//
// The write sequence is:
//  1. Acquire in-process mutex
//  2. Acquire flock on path+".lock"
//  3. Read the current file (a missing file starts empty)
//  4. Copy the current file to path+".bak"
//  5. Write path+".tmp" with 0600 permissions, fsync, rename over path
func (s *FileCredentialStore) update(fn func(*CredentialFile)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("create credential directory: %w", err)
	}

	lockFile, err := os.OpenFile(s.path+".lock", os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	defer func() { _ = lockFile.Close() }()

	if err := flockLock(lockFile.Fd()); err != nil {
		return fmt.Errorf("acquire file lock: %w", err)
	}
	defer flockUnlock(lockFile.Fd()) //nolint:errcheck

	current, err := s.read()
	switch {
	case err == nil:
	case errors.Is(err, session.ErrNoCredential):
		current = newCredentialFile()
	default:
		// An unreadable file is replaced.
		s.logger.Warn("discarding unreadable credential file", "path", s.path, "error", err)
		current = newCredentialFile()
	}

	if currentData, readErr := os.ReadFile(s.path); readErr == nil {
		if writeErr := os.WriteFile(s.path+".bak", currentData, 0600); writeErr != nil {
			s.logger.Warn("failed to create backup", "error", writeErr)
		}
	}

	fn(current)
	current.UpdatedAt = time.Now().UTC()

	data, err := json.MarshalIndent(current, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal credential file: %w", err)
	}
	data = append(data, '\n')

	if err := s.writeAtomic(data); err != nil {
		return err
	}
	if err := os.Chmod(s.path, 0600); err != nil {
		s.logger.Warn("failed to set permissions on credential file", "error", err)
	}

	s.logger.Debug("credential file saved", "path", s.path, "profile", s.profile)
	return nil
}

// writeAtomic writes data to a temp file, fsyncs it, and renames it
// over the target path. On any error the temp file is cleaned up.
func (s *FileCredentialStore) writeAtomic(data []byte) error {
	tmpPath := s.path + ".tmp"

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	cleanup := func() {
		_ = f.Close()
		_ = os.Remove(tmpPath)
	}

	if _, err := f.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp to credential file: %w", err)
	}
	return nil
}
