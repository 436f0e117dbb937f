package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/Lllllllleong/accessibilityflow/internal/models"
)

// Ensure LocalArtifactStore implements the interface.
var _ ArtifactStore = (*LocalArtifactStore)(nil)

// LocalArtifactStore writes artifacts below a root directory.
type LocalArtifactStore struct {
	root string
}

// NewLocalArtifactStore creates root if needed.
func NewLocalArtifactStore(root string) (*LocalArtifactStore, error) {
	if root == "" {
		return nil, fmt.Errorf("NewLocalArtifactStore: root cannot be empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving artifact dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("creating artifact dir: %w", err)
	}
	return &LocalArtifactStore{root: abs}, nil
}

// Put writes data to root/name and returns the absolute file path.
func (s *LocalArtifactStore) Put(_ context.Context, name, _ string, data []byte) (string, error) {
	path, err := s.resolve(name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating artifact dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing artifact %s: %w", name, err)
	}
	return path, nil
}

// Get reads a path returned by Put.
func (s *LocalArtifactStore) Get(_ context.Context, path string) ([]byte, error) {
	clean := filepath.Clean(path)
	if !s.contains(clean) {
		return nil, fmt.Errorf("artifact path %q is outside %s", path, s.root)
	}
	data, err := os.ReadFile(clean)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("artifact %s: %w", path, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading artifact %s: %w", path, err)
	}
	return data, nil
}

func (s *LocalArtifactStore) resolve(name string) (string, error) {
	path := filepath.Join(s.root, filepath.FromSlash(name))
	if !s.contains(path) || path == s.root {
		return "", fmt.Errorf("invalid artifact name %q", name)
	}
	return path, nil
}

func (s *LocalArtifactStore) contains(path string) bool {
	rel, err := filepath.Rel(s.root, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
