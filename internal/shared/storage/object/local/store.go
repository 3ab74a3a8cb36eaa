package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"finreport-backend/internal/shared/storage/object"
)

// Store implements object.Store on the local filesystem.
type Store struct {
	baseDir       string
	publicBaseURL string
}

// New creates a local store rooted at baseDir. URLs are built as
// publicBaseURL + "/api/v1/" + key, which the API serves for profile images.
func New(baseDir, publicBaseURL string) *Store {
	return &Store{baseDir: baseDir, publicBaseURL: strings.TrimRight(publicBaseURL, "/")}
}

func (s *Store) path(key string) (string, error) {
	clean, err := object.CleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.baseDir, filepath.FromSlash(clean)), nil
}

// Put writes r to key through a temp file so readers never see a partial object.
func (s *Store) Put(ctx context.Context, key, contentType string, r io.Reader) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	fullPath, err := s.path(key)
	if err != nil {
		return 0, err
	}
	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	written, copyErr := io.Copy(tmp, r)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(tmpName)
		if copyErr != nil {
			return 0, fmt.Errorf("write body: %w", copyErr)
		}
		return 0, fmt.Errorf("close temp: %w", closeErr)
	}
	if err := os.Rename(tmpName, fullPath); err != nil {
		_ = os.Remove(tmpName)
		return 0, fmt.Errorf("rename: %w", err)
	}
	return written, nil
}

// Open opens a stored object for reading.
func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fullPath, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, object.ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

func (s *Store) Delete(ctx context.Context, key string) (object.DeleteResult, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	fullPath, err := s.path(key)
	if err != nil {
		return 0, err
	}
	if err := os.Remove(fullPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return object.NotFound, nil
		}
		return 0, fmt.Errorf("remove: %w", err)
	}
	return object.Deleted, nil
}

// URL returns the public URL with a version suffix so browsers refetch
// after an overwrite at the same key.
func (s *Store) URL(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fullPath, err := s.path(key)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", object.ErrNotFound
		}
		return "", err
	}
	clean, _ := object.CleanKey(key)
	return fmt.Sprintf("%s/api/v1/%s?v=%d", s.publicBaseURL, clean, info.ModTime().UnixNano()), nil
}

var _ object.Store = (*Store)(nil)
