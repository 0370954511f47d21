// Package blob stores opaque byte blobs addressable by a string reference.
// The pipeline reads source files and writes error reports through it.
package blob

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when a reference resolves to no stored blob.
var ErrNotFound = errors.New("blob not found")

// Local stores blobs as files under a root directory. References may
// contain forward slashes for grouping ("imports/<id>.csv",
// "reports/<id>.tsv").
type Local struct {
	root string
}

// NewLocal creates a local blob store rooted at dir, creating it if needed.
func NewLocal(dir string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root %s: %w", dir, err)
	}
	return &Local{root: dir}, nil
}

// Put writes a blob, overwriting any previous content at the reference.
func (l *Local) Put(_ context.Context, ref string, data []byte) error {
	path, err := l.resolve(ref)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create blob dir for %s: %w", ref, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write blob %s: %w", ref, err)
	}
	return nil
}

func (l *Local) Get(_ context.Context, ref string) ([]byte, error) {
	path, err := l.resolve(ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", ref, err)
	}
	return data, nil
}

// Exists reports whether a blob is stored at the reference.
func (l *Local) Exists(_ context.Context, ref string) (bool, error) {
	path, err := l.resolve(ref)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("stat blob %s: %w", ref, err)
	}
	return true, nil
}

// resolve maps a reference to a path under the root, rejecting anything
// that would escape it.
func (l *Local) resolve(ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("empty blob reference")
	}
	cleaned := filepath.Clean(filepath.FromSlash(ref))
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) || filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("invalid blob reference %q", ref)
	}
	return filepath.Join(l.root, cleaned), nil
}
