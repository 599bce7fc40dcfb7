package app

import (
	"io"
	"os"
	"path/filepath"
)

// DiskStore writes received files under a single download directory. The
// receiver only ever hands it sanitized relative paths, so a simple join
// is safe.
type DiskStore struct {
	root string
}

// NewDiskStore creates a store rooted at dir.
func NewDiskStore(dir string) *DiskStore {
	return &DiskStore{root: dir}
}

// Create opens (truncating) the file at rel for writing, creating parent
// directories as needed.
func (s *DiskStore) Create(rel string, size uint64) (io.WriteCloser, error) {
	full := filepath.Join(s.root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, err
	}
	return os.Create(full)
}

// Mkdir creates the directory at rel, parents included.
func (s *DiskStore) Mkdir(rel string) error {
	return os.MkdirAll(filepath.Join(s.root, filepath.FromSlash(rel)), 0o755)
}
