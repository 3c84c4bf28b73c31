package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"resource-marketplace/internal/domain"
	"resource-marketplace/internal/domain/ports/adapter"
)

var _ adapter.FileStore = (*LocalStore)(nil)

// LocalStore serves protected resource files from a directory outside the
// web root. Keys are relative paths; anything escaping the root is rejected.
type LocalStore struct {
	root string
}

func NewLocalStore(root string) (*LocalStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage root %s is not a directory", abs)
	}
	return &LocalStore{root: abs}, nil
}

func (s *LocalStore) Open(_ context.Context, fileKey string) (io.ReadCloser, int64, error) {
	clean := filepath.Clean("/" + fileKey) // forces the key under a virtual root
	full := filepath.Join(s.root, clean)
	if !strings.HasPrefix(full, s.root+string(os.PathSeparator)) {
		return nil, 0, domain.ErrNotFound
	}

	f, err := os.Open(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, domain.ErrNotFound
		}
		return nil, 0, fmt.Errorf("open %s: %w", fileKey, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("stat %s: %w", fileKey, err)
	}
	return f, info.Size(), nil
}
