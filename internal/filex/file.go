// Package filex is the filesystem boundary of the client: it resolves the
// application data directory, lists it and removes files from it.
package filex

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// FS is the subset of filesystem access the account store and the
// database connection manager need.
type FS interface {
	// ApplicationDataDirectory returns the directory holding per-account
	// database files, creating it if needed.
	ApplicationDataDirectory() (string, error)
	// ContentsOfDirectory returns the names (not paths) of the entries in dir.
	ContentsOfDirectory(dir string) ([]string, error)
	// DeleteFile removes path. Removing a missing file is not an error.
	DeleteFile(path string) error
}

// OS implements FS on the local filesystem rooted at a data directory.
type OS struct {
	dataDir string
}

// NewOS returns an FS whose application data directory is dataDir.
func NewOS(dataDir string) *OS {
	return &OS{dataDir: dataDir}
}

func (o *OS) ApplicationDataDirectory() (string, error) {
	return EnsureDir(o.dataDir)
}

func (o *OS) ContentsOfDirectory(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (o *OS) DeleteFile(path string) error {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

// EnsureDir creates dir (and parents) with owner-only permissions if it
// does not exist and returns its absolute path.
func EnsureDir(dir string) (string, error) {
	if dir == "" {
		return "", errors.New("empty directory path")
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("abs %s: %w", dir, err)
	}

	if err := os.MkdirAll(abs, 0o700); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", abs, err)
	}

	return abs, nil
}
