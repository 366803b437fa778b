package content

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidKey signals an artifact key that would resolve outside the
// storage root.
var ErrInvalidKey = errors.New("content: artifact key escapes storage root")

// FileStore persists submission artifacts and returns an opaque reference.
// The lifecycle engine stores only the reference.
type FileStore interface {
	Save(ctx context.Context, key string, data io.Reader) (string, error)
}

// LocalStore writes artifacts under a base directory. Suitable for tests and
// single-node deployments.
type LocalStore struct {
	BaseDir string
}

func (s *LocalStore) Save(ctx context.Context, key string, data io.Reader) (string, error) {
	// Key segments carry caller-supplied names, so the joined path must be
	// proven to stay inside the base directory.
	path := filepath.Join(s.BaseDir, key)
	rel, err := filepath.Rel(s.BaseDir, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrInvalidKey
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("content: create artifact dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("content: create artifact: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, data); err != nil {
		return "", fmt.Errorf("content: write artifact: %w", err)
	}
	return path, nil
}
