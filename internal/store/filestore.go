package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileBackend stores the credential as plain-text JSON on disk. It is the
// fallback for hosts without a usable OS keyring (notably stripped-down
// Linux installs and some macOS sandboxing setups) and is explicitly less
// secure than the keyring backend: the token is readable by anything
// running as the same user. File permissions are kept at 0600 to limit
// the exposure to exactly that.
type FileBackend struct {
	path string
}

// NewFileBackend creates a file backend rooted at path. The parent
// directory is created on first save, not here.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// Name identifies the backend in logs.
func (f *FileBackend) Name() string { return "file" }

// Path returns the credential file location, used by the change watcher.
func (f *FileBackend) Path() string { return f.path }

// Load reads and decodes the credential file.
func (f *FileBackend) Load() (*Credential, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read credential file: %w", err)
	}
	var cred Credential
	if err = json.Unmarshal(data, &cred); err != nil {
		return nil, fmt.Errorf("parse credential file: %w", err)
	}
	return &cred, nil
}

// Save writes the credential file with owner-only permissions.
func (f *FileBackend) Save(cred *Credential) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("create credential directory: %w", err)
	}
	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return fmt.Errorf("encode credential: %w", err)
	}
	if err = os.WriteFile(f.path, data, 0o600); err != nil {
		return fmt.Errorf("write credential file: %w", err)
	}
	return nil
}

// Remove deletes the credential file if it exists.
func (f *FileBackend) Remove() error {
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove credential file: %w", err)
	}
	return nil
}
