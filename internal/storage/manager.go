package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// StoredObject describes a file written to a LocalStore.
type StoredObject struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// LocalStore keeps raw uploads and rendered report outputs on the local
// filesystem, one file per object, under a single directory.
type LocalStore struct {
	dir string
}

// NewLocalStore creates a new LocalStore rooted at dir.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	return &LocalStore{dir: dir}, nil
}

// Dir returns the directory the store writes to.
func (s *LocalStore) Dir() string {
	return s.dir
}

// Save writes r under a fresh uuid name carrying the given extension.
func (s *LocalStore) Save(ext string, r io.Reader) (*StoredObject, error) {
	name := uuid.New().String()
	if ext != "" {
		name += "." + strings.TrimPrefix(ext, ".")
	}
	path := filepath.Join(s.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating file: %w", err)
	}
	defer f.Close()

	size, err := io.Copy(f, r)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("writing file: %w", err)
	}

	return &StoredObject{Name: name, Size: size}, nil
}

// SaveBytes is Save for an in-memory payload.
func (s *LocalStore) SaveBytes(ext string, data []byte) (*StoredObject, error) {
	return s.Save(ext, bytes.NewReader(data))
}

// Path returns the absolute path of a stored object.
func (s *LocalStore) Path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid object name %q", name)
	}
	path := filepath.Join(s.dir, name)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("object %s: %w", name, ErrNotFound)
		}
		return "", fmt.Errorf("stat object: %w", err)
	}
	return path, nil
}

// Open opens a stored object for reading.
func (s *LocalStore) Open(name string) (*os.File, error) {
	path, err := s.Path(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening object: %w", err)
	}
	return f, nil
}

// Delete removes a stored object. Missing objects are not an error.
func (s *LocalStore) Delete(name string) error {
	path, err := s.Path(name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting file: %w", err)
	}
	return nil
}
