package relayconfig

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/renameio/v2"
)

const (
	// DirMode is used when creating the config file's parent directory.
	DirMode = 0o755

	// FileMode is the permission of the written config file.
	FileMode = 0o644
)

// Store reads and replaces the relay's YAML config file.
//
// Writes go through a temporary file and rename, so the relay never sees
// a half-written config. The store remembers the digest of the content it
// last wrote or observed; the Watcher uses that to tell its own writes
// apart from external edits.
type Store struct {
	path string

	mu    sync.Mutex
	known [sha256.Size]byte
	seen  bool
}

// NewStore returns a store for the file at path. The file need not exist.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the config file location.
func (s *Store) Path() string {
	return s.path
}

// Read returns the current file contents.
func (s *Store) Read() ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("reading relay config %s: %w", s.path, err)
	}
	return data, nil
}

// Write replaces the file with content, creating the parent directory if
// needed. Content is stored byte for byte.
func (s *Store) Write(content []byte) error {
	if err := os.MkdirAll(filepath.Dir(s.path), DirMode); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := renameio.WriteFile(s.path, content, FileMode); err != nil {
		return fmt.Errorf("writing relay config %s: %w", s.path, err)
	}

	s.known = sha256.Sum256(content)
	s.seen = true
	return nil
}

// Observe records data as the latest known content and reports whether it
// differs from what was known before.
func (s *Store) Observe(data []byte) bool {
	sum := sha256.Sum256(data)

	s.mu.Lock()
	defer s.mu.Unlock()

	changed := !s.seen || sum != s.known
	s.known = sum
	s.seen = true
	return changed
}
