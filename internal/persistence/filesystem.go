package persistence

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FilesystemAdapter stores each key as a file under a root directory.
//
// Writes are atomic (temp file + rename) so a crash mid-write never leaves
// a half-written value behind. Keys map to relative paths under the root;
// path traversal outside the root is rejected.
type FilesystemAdapter struct {
	root string
}

// NewFilesystemAdapter creates the root directory if needed and returns an
// adapter rooted there.
func NewFilesystemAdapter(root string) (*FilesystemAdapter, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: root directory required", ErrUnavailable)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root %q: %w", root, err)
	}
	if err := os.MkdirAll(abs, 0o700); err != nil {
		return nil, fmt.Errorf("%w: creating root %q: %v", ErrUnavailable, abs, err)
	}
	return &FilesystemAdapter{root: abs}, nil
}

// Root returns the absolute root directory.
func (f *FilesystemAdapter) Root() string {
	return f.root
}

// Read returns the value stored under key, or ErrNotFound.
func (f *FilesystemAdapter) Read(key string) ([]byte, error) {
	path, err := f.keyPath(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: reading %q: %v", ErrUnavailable, key, err)
	}
	return data, nil
}

// Write stores value under key atomically.
func (f *FilesystemAdapter) Write(key string, value []byte) error {
	path, err := f.keyPath(key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("%w: creating directory for %q: %v", ErrUnavailable, key, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: creating temp file for %q: %v", ErrUnavailable, key, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: writing %q: %v", ErrUnavailable, key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: closing temp file for %q: %v", ErrUnavailable, key, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: committing %q: %v", ErrUnavailable, key, err)
	}
	return nil
}

// List returns all keys with the given prefix.
func (f *FilesystemAdapter) List(prefix string) ([]string, error) {
	keys := make([]string, 0)

	err := filepath.WalkDir(f.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}
		rel, err := filepath.Rel(f.root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: listing %q: %v", ErrUnavailable, prefix, err)
	}
	return keys, nil
}

// Delete removes key. Missing keys are a no-op.
func (f *FilesystemAdapter) Delete(key string) error {
	path, err := f.keyPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: deleting %q: %v", ErrUnavailable, key, err)
	}
	return nil
}

// keyPath resolves a key to an absolute path under the root, rejecting
// traversal outside it.
func (f *FilesystemAdapter) keyPath(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("%w: empty key", ErrUnavailable)
	}
	path := filepath.Join(f.root, filepath.FromSlash(key))
	if path != f.root && !strings.HasPrefix(path, f.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: key %q escapes storage root", ErrUnavailable, key)
	}
	return path, nil
}
