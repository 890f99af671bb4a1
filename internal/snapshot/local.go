package snapshot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Local writes snapshots under a base directory on the local filesystem.
type Local struct {
	dir string
}

// NewLocal creates the base directory if needed and returns the store.
func NewLocal(dir string) (*Local, error) {
	if dir == "" {
		return nil, errors.New("snapshot directory is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve snapshot directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("create snapshot directory: %w", err)
	}
	return &Local{dir: abs}, nil
}

// Put writes data to path under the base directory and returns a file URI.
// Paths that escape the base directory are rejected.
func (l *Local) Put(_ context.Context, path string, _ string, data []byte) (string, error) {
	full := filepath.Join(l.dir, filepath.FromSlash(path))
	if !strings.HasPrefix(full, l.dir+string(os.PathSeparator)) {
		return "", fmt.Errorf("snapshot path %q escapes base directory", path)
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return "", fmt.Errorf("create snapshot subdirectory: %w", err)
	}
	if err := os.WriteFile(full, data, 0o600); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	return "file://" + filepath.ToSlash(full), nil
}
