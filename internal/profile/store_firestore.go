package profile

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const usersCollection = "users"

// FirestoreStore keeps profiles as documents in the users collection.
type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestoreStore opens Firestore through the Firebase app.
func NewFirestoreStore(ctx context.Context, app *firebase.App) (*FirestoreStore, error) {
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialize firestore: %w", err)
	}
	return &FirestoreStore{client: client}, nil
}

// NewFirestoreStoreWithClient wraps an existing client.
func NewFirestoreStoreWithClient(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

func (s *FirestoreStore) doc(uid string) *firestore.DocumentRef {
	return s.client.Collection(usersCollection).Doc(uid)
}

func (s *FirestoreStore) Get(ctx context.Context, uid string) (Profile, error) {
	snap, err := s.doc(uid).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return Profile{}, ErrNotFound
		}
		return Profile{}, fmt.Errorf("firestore get %s: %w", uid, err)
	}
	var p Profile
	if err := snap.DataTo(&p); err != nil {
		return Profile{}, fmt.Errorf("firestore decode %s: %w", uid, err)
	}
	return p, nil
}

func (s *FirestoreStore) Create(ctx context.Context, p Profile) error {
	if _, err := s.doc(p.UID).Set(ctx, p); err != nil {
		return fmt.Errorf("firestore set %s: %w", p.UID, err)
	}
	return nil
}

func (s *FirestoreStore) Patch(ctx context.Context, uid string, upd Update, updatedAt time.Time) error {
	updates := []firestore.Update{{Path: "updatedAt", Value: updatedAt}}
	if upd.DisplayName != nil {
		updates = append(updates, firestore.Update{Path: "displayName", Value: *upd.DisplayName})
	}
	if upd.PhotoURL != nil {
		updates = append(updates, firestore.Update{Path: "photoURL", Value: *upd.PhotoURL})
	}
	if _, err := s.doc(uid).Update(ctx, updates); err != nil {
		if status.Code(err) == codes.NotFound {
			return ErrNotFound
		}
		return fmt.Errorf("firestore update %s: %w", uid, err)
	}
	return nil
}

// Close releases the underlying client.
func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

var _ Store = (*FirestoreStore)(nil)
