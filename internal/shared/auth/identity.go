package auth

import (
	"context"
	"errors"
)

// Claims is the identity carried by a verified ID token.
type Claims struct {
	UID           string
	Email         string
	Name          string
	Picture       string
	EmailVerified bool
}

// User is the identity record held by the platform.
type User struct {
	UID           string `json:"uid"`
	Email         string `json:"email"`
	DisplayName   string `json:"displayName"`
	PhotoURL      string `json:"photoURL"`
	EmailVerified bool   `json:"emailVerified"`
}

// NewUser describes a sign-up request.
type NewUser struct {
	Email       string
	Password    string
	DisplayName string
}

// ProfileUpdate patches the identity record. Nil fields are left untouched.
type ProfileUpdate struct {
	DisplayName *string
	PhotoURL    *string
}

// Session is returned by a password sign-in.
type Session struct {
	UID          string `json:"uid"`
	Email        string `json:"email"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int    `json:"expiresIn"`
}

var (
	ErrInvalidToken       = errors.New("invalid token")
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailExists        = errors.New("email already in use")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrNotConfigured      = errors.New("identity provider not configured")
)

// Provider is the identity platform as seen by the service.
type Provider interface {
	VerifyIDToken(ctx context.Context, idToken string) (Claims, error)
	CreateUser(ctx context.Context, u NewUser) (User, error)
	GetUser(ctx context.Context, uid string) (User, error)
	UpdateProfile(ctx context.Context, uid string, upd ProfileUpdate) error
	UpdatePassword(ctx context.Context, uid, password string) error
	RevokeSessions(ctx context.Context, uid string) error
	SignIn(ctx context.Context, email, password string) (Session, error)
	SendPasswordReset(ctx context.Context, email string) error
	SendVerification(ctx context.Context, uid string) error
}
