// Package tokenfile persists OAuth2 credentials as a small JSON document.
// It is a leaf package imported by auth/ and the CLI so the on-disk format
// lives in exactly one place.
package tokenfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FilePerms restricts token files to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the token directory.
const DirPerms = 0o700

// Credentials is the persisted OAuth2 state for one user.
// ExpiresAt is computed locally at issuance; it is never a server timestamp.
type Credentials struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	Scope        string    `json:"scope,omitempty"`
}

// Load reads a credential file from disk. Returns (nil, nil) if the file
// does not exist.
func Load(path string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("tokenfile: reading %s: %w", path, err)
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("tokenfile: decoding %s: %w", path, err)
	}

	if creds.AccessToken == "" && creds.RefreshToken == "" {
		return nil, fmt.Errorf("tokenfile: %s has no tokens (re-authorization required)", path)
	}

	return &creds, nil
}

// Save writes a credential file to disk atomically (write-to-temp + rename)
// with 0600 permissions. Never logs token values.
func Save(path string, creds *Credentials) error {
	if creds == nil {
		return errors.New("tokenfile: nil credentials")
	}

	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("tokenfile: encoding: %w", err)
	}

	dir := filepath.Dir(path)
	if mkErr := os.MkdirAll(dir, DirPerms); mkErr != nil {
		return fmt.Errorf("tokenfile: creating directory %s: %w", dir, mkErr)
	}

	// Same directory guarantees same filesystem for rename(2).
	tmp, err := os.CreateTemp(dir, ".token-*.tmp")
	if err != nil {
		return fmt.Errorf("tokenfile: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: writing: %w", err)
	}

	// Flush before rename so a crash cannot leave a truncated file at path.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("tokenfile: closing: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("tokenfile: renaming: %w", err)
	}

	success = true

	return nil
}

// Remove deletes the credential file. A missing file is not an error.
func Remove(path string) error {
	err := os.Remove(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	return fmt.Errorf("tokenfile: removing %s: %w", path, err)
}

// Store is a file-backed credential store bound to one path. Its methods
// are safe for concurrent use within a process; cross-process locking is
// left to the caller.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore returns a Store for the credential file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the file the store reads and writes.
func (s *Store) Path() string {
	return s.path
}

// Load returns the stored credentials, or nil if none are stored.
func (s *Store) Load() (*Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Load(s.path)
}

// Save replaces the stored credentials.
func (s *Store) Save(creds *Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Save(s.path, creds)
}

// Clear removes any stored credentials.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Remove(s.path)
}
