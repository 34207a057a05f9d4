package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore serves storage paths from a directory tree, for development and
// the watch command. Paths are always resolved below root.
type LocalStore struct {
	root string
}

// NewLocalStore creates a LocalStore rooted at dir.
func NewLocalStore(dir string) (*LocalStore, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	return &LocalStore{root: abs}, nil
}

// Root returns the absolute root directory.
func (l *LocalStore) Root() string { return l.root }

func (l *LocalStore) resolve(path string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(path))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s escapes the audio root", ErrAccessDenied, path)
	}
	return filepath.Join(l.root, clean), nil
}

// Fetch implements Fetcher.
func (l *LocalStore) Fetch(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		if isTimeout(ctx, err) {
			return nil, fmt.Errorf("%w: %s", ErrTimeout, path)
		}
		return nil, err
	}
	full, err := l.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	case errors.Is(err, fs.ErrPermission):
		return nil, fmt.Errorf("%w: %s", ErrAccessDenied, path)
	case err != nil:
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

// List implements Lister. Keys are slash-separated and relative to root.
func (l *LocalStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	dir, err := l.resolve(prefix)
	if err != nil {
		return nil, err
	}
	var objects []ObjectInfo
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if errors.Is(walkErr, fs.ErrNotExist) {
				return fs.SkipDir
			}
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(l.root, p)
		if err != nil {
			return err
		}
		objects = append(objects, ObjectInfo{
			Key:          filepath.ToSlash(rel),
			Size:         info.Size(),
			LastModified: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
	}
	return objects, nil
}

// KeyFor converts an absolute file path below root into a storage path.
func (l *LocalStore) KeyFor(file string) (string, error) {
	rel, err := filepath.Rel(l.root, file)
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%s is outside %s", file, l.root)
	}
	return filepath.ToSlash(rel), nil
}
