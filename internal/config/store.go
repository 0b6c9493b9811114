package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrInvalid marks a document rejected by validation.
var ErrInvalid = errors.New("invalid config")

// Store reads and writes the configuration document at a fixed path.
// Writes are serialized by a mutex and performed atomically: temp file,
// fsync, rename.
type Store struct {
	mu        sync.Mutex
	path      string
	operators map[string]bool
}

// NewStore creates a store for path. operators is the registered strategy
// set used to validate saves.
func NewStore(path string, operators []string) *Store {
	set := make(map[string]bool, len(operators))
	for _, op := range operators {
		set[op] = true
	}
	return &Store{path: path, operators: set}
}

// Path returns the document location.
func (s *Store) Path() string { return s.path }

// Exists reports whether a document is present on disk.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Load reads and strictly parses the document. A missing file yields the
// default document, not an error.
func (s *Store) Load() (Document, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return Document{}, fmt.Errorf("read config: %w", err)
	}
	return Decode(data)
}

// Save validates the document and writes it atomically with mode 0600
// under a 0700 parent directory.
func (s *Store) Save(doc Document) error {
	if err := doc.Validate(s.operators); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(dir, ".config-*.json")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // no-op after successful rename

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp config: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("fsync temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp config: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("rename config into place: %w", err)
	}
	return nil
}
