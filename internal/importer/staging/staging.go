// Package staging owns a scratch directory for intermediate files of one run.
package staging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

type Area struct {
	root      string
	closeOnce sync.Once
	closeErr  error
}

// New creates a fresh directory under parent (os.TempDir() when empty).
func New(parent string) (*Area, error) {
	if strings.TrimSpace(parent) != "" {
		if err := os.MkdirAll(parent, 0o755); err != nil {
			return nil, fmt.Errorf("create staging parent: %w", err)
		}
	}
	root, err := os.MkdirTemp(parent, "bookimport-staging-")
	if err != nil {
		return nil, fmt.Errorf("create staging area: %w", err)
	}
	return &Area{root: root}, nil
}

func (a *Area) Root() string { return a.root }

// Path resolves rel inside the area. Paths escaping the area are rejected.
func (a *Area) Path(rel string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(clean) || clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("staging path %q escapes the staging area", rel)
	}
	return filepath.Join(a.root, clean), nil
}

// WriteJSON encodes v as indented JSON at rel and returns the absolute path.
func (a *Area) WriteJSON(rel string, v any) (string, error) {
	p, err := a.Path(rel)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("create staging dir: %w", err)
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", rel, err)
	}
	if err := os.WriteFile(p, b, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", rel, err)
	}
	return p, nil
}

// Close removes the area and everything in it. Later calls return the first result.
func (a *Area) Close() error {
	a.closeOnce.Do(func() {
		a.closeErr = os.RemoveAll(a.root)
	})
	return a.closeErr
}
