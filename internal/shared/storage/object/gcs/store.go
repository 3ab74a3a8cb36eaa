package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"cloud.google.com/go/storage"
	firebase "firebase.google.com/go/v4"
	"github.com/google/uuid"

	"finreport-backend/internal/shared/storage/object"
)

const (
	downloadTokenKey   = "firebaseStorageDownloadTokens"
	defaultDownloadURL = "https://firebasestorage.googleapis.com"
)

// Store implements object.Store on a Cloud Storage bucket, issuing the
// token-bearing download URLs Firebase clients expect.
type Store struct {
	bucket      *storage.BucketHandle
	bucketName  string
	downloadURL string
}

// NewFromFirebase opens the named bucket, or the app's default bucket when
// name is empty.
func NewFromFirebase(ctx context.Context, app *firebase.App, name string) (*Store, error) {
	client, err := app.Storage(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialize firebase storage: %w", err)
	}
	var handle *storage.BucketHandle
	if strings.TrimSpace(name) == "" {
		handle, err = client.DefaultBucket()
	} else {
		handle, err = client.Bucket(name)
	}
	if err != nil {
		return nil, fmt.Errorf("open storage bucket: %w", err)
	}
	attrs, err := handle.Attrs(ctx)
	if err != nil {
		return nil, fmt.Errorf("read bucket attrs: %w", err)
	}
	return New(handle, attrs.Name), nil
}

// New wraps an existing bucket handle.
func New(bucket *storage.BucketHandle, bucketName string) *Store {
	return &Store{bucket: bucket, bucketName: bucketName, downloadURL: defaultDownloadURL}
}

func (s *Store) Put(ctx context.Context, key, contentType string, r io.Reader) (int64, error) {
	clean, err := object.CleanKey(key)
	if err != nil {
		return 0, err
	}
	w := s.bucket.Object(clean).NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = map[string]string{downloadTokenKey: uuid.NewString()}

	n, err := io.Copy(w, r)
	if err != nil {
		_ = w.Close()
		return 0, fmt.Errorf("gcs write %s: %w", clean, err)
	}
	if err := w.Close(); err != nil {
		return 0, fmt.Errorf("gcs close %s: %w", clean, err)
	}
	return n, nil
}

func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	clean, err := object.CleanKey(key)
	if err != nil {
		return nil, err
	}
	rc, err := s.bucket.Object(clean).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, object.ErrNotFound
		}
		return nil, fmt.Errorf("gcs open %s: %w", clean, err)
	}
	return rc, nil
}

func (s *Store) Delete(ctx context.Context, key string) (object.DeleteResult, error) {
	clean, err := object.CleanKey(key)
	if err != nil {
		return 0, err
	}
	if err := s.bucket.Object(clean).Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return object.NotFound, nil
		}
		return 0, fmt.Errorf("gcs delete %s: %w", clean, err)
	}
	return object.Deleted, nil
}

// URL builds the token download URL from the object's metadata.
func (s *Store) URL(ctx context.Context, key string) (string, error) {
	clean, err := object.CleanKey(key)
	if err != nil {
		return "", err
	}
	attrs, err := s.bucket.Object(clean).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return "", object.ErrNotFound
		}
		return "", fmt.Errorf("gcs attrs %s: %w", clean, err)
	}
	token := attrs.Metadata[downloadTokenKey]
	// A comma-separated list is allowed; any entry works.
	if i := strings.IndexByte(token, ','); i >= 0 {
		token = token[:i]
	}
	return downloadURL(s.downloadURL, s.bucketName, clean, token), nil
}

func downloadURL(base, bucket, key, token string) string {
	u := fmt.Sprintf("%s/v0/b/%s/o/%s?alt=media",
		strings.TrimRight(base, "/"), bucket, url.PathEscape(key))
	if token != "" {
		u += "&token=" + url.QueryEscape(token)
	}
	return u
}

var _ object.Store = (*Store)(nil)
