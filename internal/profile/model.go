package profile

import (
	"errors"
	"time"
)

// ImagePrefix is the object key prefix for profile images. Each user has at
// most one image, keyed by uid.
const ImagePrefix = "profile-images/"

var (
	ErrNotFound = errors.New("profile not found")
	ErrNotImage = errors.New("file is not an image")

	// ErrIdentityMirror wraps failures to copy profile fields to the identity record.
	ErrIdentityMirror = errors.New("mirror profile to identity")
)

// Profile is the users/{uid} document.
type Profile struct {
	UID         string    `json:"uid" firestore:"uid"`
	Email       string    `json:"email" firestore:"email"`
	DisplayName string    `json:"displayName" firestore:"displayName"`
	PhotoURL    string    `json:"photoURL" firestore:"photoURL"`
	CreatedAt   time.Time `json:"createdAt" firestore:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt" firestore:"updatedAt"`
}

// Update patches a profile. Nil fields are left untouched.
type Update struct {
	DisplayName *string `json:"displayName,omitempty"`
	PhotoURL    *string `json:"photoURL,omitempty"`
}

func (u Update) empty() bool {
	return u.DisplayName == nil && u.PhotoURL == nil
}

// apply returns p with the update's fields set.
func (u Update) apply(p Profile) Profile {
	if u.DisplayName != nil {
		p.DisplayName = *u.DisplayName
	}
	if u.PhotoURL != nil {
		p.PhotoURL = *u.PhotoURL
	}
	return p
}

// inverse returns the update that restores p's values for the fields u sets.
func (u Update) inverse(p Profile) Update {
	var out Update
	if u.DisplayName != nil {
		v := p.DisplayName
		out.DisplayName = &v
	}
	if u.PhotoURL != nil {
		v := p.PhotoURL
		out.PhotoURL = &v
	}
	return out
}

// ImageKey returns the object key of uid's profile image.
func ImageKey(uid string) string {
	return ImagePrefix + uid
}
