// Package objstore provides object storage for uploaded inputs and export
// artifacts.
package objstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound indicates the requested object does not exist.
var ErrNotFound = errors.New("object not found")

// Store is the object storage interface.
type Store interface {
	Upload(key string, data []byte) error
	Download(key string) ([]byte, error)
	Delete(key string) error
	Exists(key string) bool
}

// FSStore implements Store on the local filesystem under a fixed root.
type FSStore struct {
	root string
}

// NewFSStore creates a filesystem store rooted at the given directory,
// creating it if needed.
func NewFSStore(root string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	return &FSStore{root: abs}, nil
}

// resolve maps a key to a path under the root, rejecting traversal.
func (s *FSStore) resolve(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	path := filepath.Join(s.root, clean)
	if !strings.HasPrefix(path, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return path, nil
}

// Upload writes an object, creating intermediate directories.
func (s *FSStore) Upload(key string, data []byte) error {
	path, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create object directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write object: %w", err)
	}
	return nil
}

// Download reads an object.
func (s *FSStore) Download(key string) ([]byte, error) {
	path, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	return data, nil
}

// Delete removes an object. Deleting a missing object is not an error.
func (s *FSStore) Delete(key string) error {
	path, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

// Exists reports whether an object is present.
func (s *FSStore) Exists(key string) bool {
	path, err := s.resolve(key)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}
