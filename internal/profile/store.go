package profile

import (
	"context"
	"time"
)

// Store persists profile documents.
type Store interface {
	Get(ctx context.Context, uid string) (Profile, error)
	// Create writes the whole document, replacing any existing one.
	Create(ctx context.Context, p Profile) error
	// Patch sets the update's fields and updatedAt. It returns ErrNotFound
	// when the document does not exist.
	Patch(ctx context.Context, uid string, upd Update, updatedAt time.Time) error
}
