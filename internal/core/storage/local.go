package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prismdocs/prism-server/internal/core"
)

// LocalStore keeps files on the local filesystem under a root directory.
// Keys are slash-separated paths relative to the root.
type LocalStore struct {
	root string
}

func NewLocalStore(root string) (core.FileStore, error) {
	if root == "" {
		return nil, fmt.Errorf("storage root not set")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &LocalStore{root: root}, nil
}

func (s *LocalStore) Write(ctx context.Context, path string, data []byte) error {
	full := filepath.Join(s.root, filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func (s *LocalStore) Read(ctx context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(path)))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// DeleteTree removes the prefix directory recursively. Already-gone
// directories are fine.
func (s *LocalStore) DeleteTree(ctx context.Context, prefix string) error {
	full := filepath.Join(s.root, filepath.FromSlash(prefix))
	if err := os.RemoveAll(full); err != nil {
		return fmt.Errorf("delete %s: %w", prefix, err)
	}
	return nil
}
