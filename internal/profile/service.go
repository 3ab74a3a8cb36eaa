package profile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"finreport-backend/internal/shared/auth"
	"finreport-backend/internal/shared/lock"
	"finreport-backend/internal/shared/storage/object"
	"finreport-backend/internal/shared/telemetry"
)

const (
	rollbackTimeout = 10 * time.Second
	lockTTL         = time.Minute
)

// Identity is the part of the identity platform profiles mirror into.
type Identity interface {
	UpdateProfile(ctx context.Context, uid string, upd auth.ProfileUpdate) error
}

// Service keeps the profile document, the identity record and the profile
// image in step.
type Service struct {
	store    Store
	identity Identity
	blobs    object.Store
	locks    lock.Locker
	now      func() time.Time
}

// NewService wires the profile stores. Saves and image uploads for one user
// are serialized through locks; nil means a process-local locker.
func NewService(store Store, identity Identity, blobs object.Store, locks lock.Locker) *Service {
	if locks == nil {
		locks = lock.NewMemory()
	}
	return &Service{store: store, identity: identity, blobs: blobs, locks: locks, now: time.Now}
}

// Get returns the profile, or ErrNotFound.
func (s *Service) Get(ctx context.Context, uid string) (Profile, error) {
	if strings.TrimSpace(uid) == "" {
		return Profile{}, errors.New("uid is required")
	}
	return s.store.Get(ctx, uid)
}

// Create writes the registration document with an empty photo.
func (s *Service) Create(ctx context.Context, uid, email, displayName string) (Profile, error) {
	now := s.now().UTC()
	p := Profile{
		UID:         uid,
		Email:       email,
		DisplayName: displayName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Create(ctx, p); err != nil {
		return Profile{}, fmt.Errorf("create profile: %w", err)
	}
	return p, nil
}

// Update patches the document and mirrors the fields to the identity record.
// If the mirror fails the document patch is reverted. A concurrent save or
// upload for the same user fails with lock.ErrBusy.
func (s *Service) Update(ctx context.Context, uid string, upd Update) (Profile, error) {
	release, err := s.acquire(ctx, uid)
	if err != nil {
		return Profile{}, err
	}
	defer release()
	return s.update(ctx, uid, upd)
}

func (s *Service) update(ctx context.Context, uid string, upd Update) (Profile, error) {
	current, err := s.store.Get(ctx, uid)
	if err != nil {
		return Profile{}, err
	}
	now := s.now().UTC()
	if err := s.store.Patch(ctx, uid, upd, now); err != nil {
		return Profile{}, fmt.Errorf("patch profile: %w", err)
	}
	if upd.empty() {
		current.UpdatedAt = now
		return current, nil
	}

	mirrorErr := s.identity.UpdateProfile(ctx, uid, auth.ProfileUpdate{
		DisplayName: upd.DisplayName,
		PhotoURL:    upd.PhotoURL,
	})
	if mirrorErr == nil {
		updated := upd.apply(current)
		updated.UpdatedAt = now
		return updated, nil
	}
	mirrorErr = fmt.Errorf("%w: %w", ErrIdentityMirror, mirrorErr)

	rbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()
	if rbErr := s.store.Patch(rbCtx, uid, upd.inverse(current), current.UpdatedAt); rbErr != nil {
		telemetry.Error("profile.rollback_failed", map[string]any{
			"user_id": uid,
			"error":   rbErr.Error(),
		})
		return Profile{}, errors.Join(mirrorErr, fmt.Errorf("roll back profile: %w", rbErr))
	}
	telemetry.Warn("profile.rolled_back", map[string]any{
		"user_id": uid,
		"error":   mirrorErr.Error(),
	})
	return Profile{}, mirrorErr
}

// UploadImage replaces the user's profile image and points photoURL at it.
func (s *Service) UploadImage(ctx context.Context, uid, contentType string, r io.Reader) (string, error) {
	if !strings.HasPrefix(strings.ToLower(contentType), "image/") {
		return "", ErrNotImage
	}
	release, err := s.acquire(ctx, uid)
	if err != nil {
		return "", err
	}
	defer release()

	key := ImageKey(uid)
	res, err := s.blobs.Delete(ctx, key)
	if err != nil {
		return "", fmt.Errorf("delete previous image: %w", err)
	}
	size, err := s.blobs.Put(ctx, key, contentType, r)
	if err != nil {
		return "", fmt.Errorf("store image: %w", err)
	}
	url, err := s.blobs.URL(ctx, key)
	if err != nil {
		return "", fmt.Errorf("resolve image url: %w", err)
	}
	telemetry.Info("profile.image_stored", map[string]any{
		"user_id":  uid,
		"bytes":    size,
		"previous": res.String(),
	})

	if _, err := s.update(ctx, uid, Update{PhotoURL: &url}); err != nil {
		return "", err
	}
	return url, nil
}

// OpenImage opens the stored profile image.
func (s *Service) OpenImage(ctx context.Context, uid string) (io.ReadCloser, error) {
	return s.blobs.Open(ctx, ImageKey(uid))
}

func (s *Service) acquire(ctx context.Context, uid string) (func(), error) {
	return lock.AcquireRenewing(ctx, s.locks, "profile:"+uid, lockTTL)
}
