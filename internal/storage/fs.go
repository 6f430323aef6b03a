package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/starford/nbweb/internal/apperr"
	"github.com/starford/nbweb/internal/pathutil"
)

// TempPattern names in-flight writes. The leading dot keeps them out of the
// index under the default exclusions.
const TempPattern = ".nbweb-tmp-*"

// FS implements Provider on the local file system.
type FS struct {
	paths *pathutil.Resolver
}

var _ Provider = (*FS)(nil)

// NewFS creates a provider over the resolver's root.
func NewFS(paths *pathutil.Resolver) *FS {
	return &FS{paths: paths}
}

// file resolves a logical path to a system path that is not the root itself.
func (f *FS) file(logical string) (string, error) {
	abs, err := f.paths.SystemPath(logical)
	if err != nil {
		return "", err
	}
	if abs == f.paths.Root() {
		return "", fmt.Errorf("storage: %q is the notebook root: %w", logical, apperr.ErrSecurity)
	}
	return abs, nil
}

func notFound(op, logical string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage: %s %s: %w", op, logical, apperr.ErrNotFound)
	}
	return fmt.Errorf("storage: %s %s: %w", op, logical, err)
}

// Read returns the raw bytes of a notebook file.
func (f *FS) Read(logical string) ([]byte, error) {
	abs, err := f.file(logical)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, notFound("read", logical, err)
	}
	return data, nil
}

// Write atomically writes content: tmp file, fsync, rename.
func (f *FS) Write(logical string, content []byte) error {
	abs, err := f.file(logical)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, TempPattern)
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("storage: chmod: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}

// Delete removes a notebook file.
func (f *FS) Delete(logical string) error {
	abs, err := f.file(logical)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		return notFound("delete", logical, err)
	}
	return nil
}

// Move renames a file within the notebook. An existing target is not
// overwritten.
func (f *FS) Move(oldLogical, newLogical string) error {
	absOld, err := f.file(oldLogical)
	if err != nil {
		return err
	}
	absNew, err := f.file(newLogical)
	if err != nil {
		return err
	}
	if _, err := os.Stat(absOld); err != nil {
		return notFound("move", oldLogical, err)
	}
	if _, err := os.Stat(absNew); err == nil {
		return fmt.Errorf("storage: move to %s: %w", newLogical, apperr.ErrAlreadyExists)
	}
	if err := os.MkdirAll(filepath.Dir(absNew), 0o755); err != nil {
		return fmt.Errorf("storage: mkdir for move: %w", err)
	}
	if err := os.Rename(absOld, absNew); err != nil {
		return fmt.Errorf("storage: move: %w", err)
	}
	return nil
}
