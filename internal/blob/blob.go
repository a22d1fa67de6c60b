// Package blob stores generated media on the local filesystem and hands out
// durable URLs for it.
package blob

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Storage writes named blobs under a base directory. The returned URL is the
// configured base URL joined with the blob name; the directory is expected to
// be served statically under that URL.
type Storage struct {
	dir     string
	baseURL string
}

// NewStorage creates the base directory if needed.
func NewStorage(dir, baseURL string) (*Storage, error) {
	if dir == "" {
		return nil, fmt.Errorf("blob: storage dir required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("blob: create storage dir: %w", err)
	}
	return &Storage{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Save writes data under name and returns its durable URL. Name is reduced to
// its base path component so callers cannot escape the storage directory.
func (s *Storage) Save(name string, data []byte) (string, error) {
	name = filepath.Base(name)
	if name == "." || name == string(filepath.Separator) {
		return "", fmt.Errorf("blob: invalid name %q", name)
	}
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("blob: write %s: %w", name, err)
	}
	return s.baseURL + "/" + name, nil
}

// Dir returns the storage directory, for static file serving.
func (s *Storage) Dir() string {
	return s.dir
}
