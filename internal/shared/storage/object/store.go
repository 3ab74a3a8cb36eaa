package object

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

// DeleteResult distinguishes a removed object from one that was never there.
type DeleteResult int

const (
	Deleted DeleteResult = iota + 1
	NotFound
)

func (r DeleteResult) String() string {
	switch r {
	case Deleted:
		return "deleted"
	case NotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

var (
	ErrNotFound   = errors.New("object not found")
	ErrInvalidKey = errors.New("invalid storage key")
)

// Store saves and retrieves binary objects at caller-chosen keys.
type Store interface {
	Put(ctx context.Context, key, contentType string, r io.Reader) (sizeBytes int64, err error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes key. A missing key is NotFound with a nil error.
	Delete(ctx context.Context, key string) (DeleteResult, error)
	URL(ctx context.Context, key string) (string, error)
}

// CleanKey normalizes a slash-separated key and rejects traversal.
func CleanKey(key string) (string, error) {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" || strings.Contains(trimmed, "\\") {
		return "", ErrInvalidKey
	}
	clean := path.Clean("/" + trimmed)[1:]
	if clean == "" || clean == "." {
		return "", ErrInvalidKey
	}
	for _, part := range strings.Split(trimmed, "/") {
		if part == ".." {
			return "", ErrInvalidKey
		}
	}
	return clean, nil
}
