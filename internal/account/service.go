package account

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"

	"finreport-backend/internal/profile"
	"finreport-backend/internal/shared/auth"
	"finreport-backend/internal/shared/telemetry"
)

// MinPasswordLength is the platform's password floor, checked locally.
const MinPasswordLength = 6

var (
	ErrPasswordMismatch = errors.New("Passwords do not match")
	ErrPasswordTooShort = errors.New("Password must be at least 6 characters")
	ErrInvalidEmail     = errors.New("invalid email address")
)

// Profiles creates the profile document for a new account.
type Profiles interface {
	Create(ctx context.Context, uid, email, displayName string) (profile.Profile, error)
}

type Service struct {
	Identity auth.Provider
	Profiles Profiles
}

func NewService(identity auth.Provider, profiles Profiles) *Service {
	return &Service{Identity: identity, Profiles: profiles}
}

// Registration is the result of a successful sign-up.
type Registration struct {
	User    auth.User       `json:"user"`
	Profile profile.Profile `json:"profile"`
}

// Register creates the identity user, sends the verification email and
// writes the profile document.
func (s *Service) Register(ctx context.Context, email, password, displayName string) (Registration, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return Registration{}, err
	}
	if err := checkLength(password); err != nil {
		return Registration{}, err
	}
	displayName = strings.TrimSpace(displayName)

	user, err := s.Identity.CreateUser(ctx, auth.NewUser{
		Email:       email,
		Password:    password,
		DisplayName: displayName,
	})
	if err != nil {
		return Registration{}, fmt.Errorf("create user: %w", err)
	}

	// The user can ask for a new link, so a failed send does not undo the sign-up.
	if err := s.Identity.SendVerification(ctx, user.UID); err != nil {
		telemetry.Warn("account.verification_failed", map[string]any{
			"user_id": user.UID,
			"error":   err.Error(),
		})
	}

	p, err := s.Profiles.Create(ctx, user.UID, user.Email, displayName)
	if err != nil {
		return Registration{}, err
	}
	telemetry.Info("account.registered", map[string]any{"user_id": user.UID})
	return Registration{User: user, Profile: p}, nil
}

func (s *Service) SignIn(ctx context.Context, email, password string) (auth.Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return auth.Session{}, err
	}
	if password == "" {
		return auth.Session{}, auth.ErrInvalidCredentials
	}
	return s.Identity.SignIn(ctx, email, password)
}

// SignOut revokes every refresh token of uid.
func (s *Service) SignOut(ctx context.Context, uid string) error {
	if err := s.Identity.RevokeSessions(ctx, uid); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	telemetry.Info("account.signed_out", map[string]any{"user_id": uid})
	return nil
}

func (s *Service) SendPasswordReset(ctx context.Context, email string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	return s.Identity.SendPasswordReset(ctx, email)
}

func (s *Service) SendVerification(ctx context.Context, uid string) error {
	return s.Identity.SendVerification(ctx, uid)
}

// ChangePassword validates locally before touching the identity platform.
func (s *Service) ChangePassword(ctx context.Context, uid, newPassword, confirmPassword string) error {
	if newPassword != confirmPassword {
		return ErrPasswordMismatch
	}
	if err := checkLength(newPassword); err != nil {
		return err
	}
	if err := s.Identity.UpdatePassword(ctx, uid, newPassword); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	telemetry.Info("account.password_changed", map[string]any{"user_id": uid})
	return nil
}

func checkLength(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	return nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}
