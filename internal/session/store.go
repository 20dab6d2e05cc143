package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// TokenStore persists the bearer token between invocations.
type TokenStore interface {
	Load() (string, error)
	Save(token string) error
	Delete() error
}

// FileStore keeps the token in a single file readable only by the owner.
type FileStore struct {
	path string
}

// NewFileStore returns a store backed by path. An empty path selects
// DefaultTokenPath.
func NewFileStore(path string) *FileStore {
	if strings.TrimSpace(path) == "" {
		path = DefaultTokenPath()
	}
	return &FileStore{path: path}
}

// DefaultTokenPath is ~/.config/museumbook/token on Linux.
func DefaultTokenPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "museumbook", "token")
}

// Path returns the backing file.
func (f *FileStore) Path() string {
	return f.path
}

// Load returns the stored token, or "" when none has been saved.
func (f *FileStore) Load() (string, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (f *FileStore) Save(token string) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	if err := os.WriteFile(f.path, []byte(token), 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	// WriteFile keeps the mode of an existing file.
	if err := os.Chmod(f.path, 0o600); err != nil {
		return fmt.Errorf("chmod token file: %w", err)
	}
	return nil
}

func (f *FileStore) Delete() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove token file: %w", err)
	}
	return nil
}

// MemoryStore is a TokenStore that never touches disk.
type MemoryStore struct {
	token string
}

func (m *MemoryStore) Load() (string, error) { return m.token, nil }
func (m *MemoryStore) Save(token string) error {
	m.token = token
	return nil
}
func (m *MemoryStore) Delete() error {
	m.token = ""
	return nil
}
