// Package auth owns the OAuth2 token lifecycle for the drops engine:
// the authorization-code flow, refresh, validation, revocation, and
// persistence of the credential snapshot.
package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Token is the persisted OAuth credential snapshot.
type Token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ObtainedAt   int64  `json:"obtained_at"`
	ExpiresIn    int    `json:"expires_in"`
}

// ExpiresAt returns the instant the access token expires.
func (t *Token) ExpiresAt() time.Time {
	return time.Unix(t.ObtainedAt, 0).Add(time.Duration(t.ExpiresIn) * time.Second)
}

// Fresh returns true while the token is at least skew away from expiry.
func (t *Token) Fresh(skew time.Duration) bool {
	return time.Now().Before(t.ExpiresAt().Add(-skew))
}

// Store persists the credential snapshot across restarts.
type Store interface {
	// Load returns the stored token, or (nil, nil) when none exists.
	Load() (*Token, error)
	// Save writes the token snapshot durably before returning.
	Save(*Token) error
	// Clear removes any stored token.
	Clear() error
}

// FileStore keeps the token in a JSON file, written atomically
// (temp file + rename) with owner-only permissions.
type FileStore struct {
	path string
}

// NewFileStore creates a FileStore at the given path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the token file. A missing file yields (nil, nil).
func (fs *FileStore) Load() (*Token, error) {
	data, err := os.ReadFile(fs.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading token file %s: %w", fs.path, err)
	}

	var token Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("parsing token file %s: %w", fs.path, err)
	}
	return &token, nil
}

// Save writes the token to disk, creating parent directories as needed.
func (fs *FileStore) Save(token *Token) error {
	dir := filepath.Dir(fs.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating token directory %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling token: %w", err)
	}

	tmpPath := fs.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("writing temp token file %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, fs.path); err != nil {
		return fmt.Errorf("renaming temp token file %s to %s: %w", tmpPath, fs.path, err)
	}

	return nil
}

// Clear deletes the token file. A missing file is not an error.
func (fs *FileStore) Clear() error {
	if err := os.Remove(fs.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing token file %s: %w", fs.path, err)
	}
	return nil
}
