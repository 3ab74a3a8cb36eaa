package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	firebase "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"finreport-backend/internal/shared/telemetry"
)

// FirebaseOptions configures the Firebase app shared by identity, Firestore and Storage.
type FirebaseOptions struct {
	CredentialsFile string
	ProjectID       string
	StorageBucket   string
}

// NewFirebaseApp initializes the Admin SDK app.
func NewFirebaseApp(ctx context.Context, opts FirebaseOptions) (*firebase.App, error) {
	var clientOpts []option.ClientOption
	if strings.TrimSpace(opts.CredentialsFile) != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}
	conf := &firebase.Config{
		ProjectID:     opts.ProjectID,
		StorageBucket: opts.StorageBucket,
	}
	app, err := firebase.NewApp(ctx, conf, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("initialize firebase app: %w", err)
	}
	return app, nil
}

// adminClient is the subset of the Admin SDK auth client in use.
type adminClient interface {
	VerifyIDToken(ctx context.Context, idToken string) (*fbauth.Token, error)
	CreateUser(ctx context.Context, user *fbauth.UserToCreate) (*fbauth.UserRecord, error)
	GetUser(ctx context.Context, uid string) (*fbauth.UserRecord, error)
	UpdateUser(ctx context.Context, uid string, user *fbauth.UserToUpdate) (*fbauth.UserRecord, error)
	RevokeRefreshTokens(ctx context.Context, uid string) error
	CustomToken(ctx context.Context, uid string) (string, error)
	PasswordResetLink(ctx context.Context, email string) (string, error)
	EmailVerificationLink(ctx context.Context, email string) (string, error)
}

// Firebase implements Provider on Firebase Auth.
type Firebase struct {
	admin    adminClient
	toolkit  *Toolkit
	logLinks bool
}

// NewFirebase builds a provider from an initialized app. toolkit may be nil,
// in which case emails are not sent and action links are logged instead.
func NewFirebase(ctx context.Context, app *firebase.App, toolkit *Toolkit) (*Firebase, error) {
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialize firebase auth: %w", err)
	}
	return &Firebase{admin: client, toolkit: toolkit}, nil
}

// LogActionLinks makes the no-toolkit fallback log usable action links.
// Otherwise the one-time code in each logged link is redacted.
func (f *Firebase) LogActionLinks(enabled bool) {
	f.logLinks = enabled
}

func (f *Firebase) logActionLink(kind string, fields map[string]any, link string) {
	if !f.logLinks {
		link = redactActionLink(link)
	}
	fields["type"] = kind
	fields["link"] = link
	telemetry.Info("identity.action_link", fields)
}

// redactActionLink blanks the oobCode query parameter.
func redactActionLink(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return "[redacted]"
	}
	q := u.Query()
	if q.Has("oobCode") {
		q.Set("oobCode", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func (f *Firebase) VerifyIDToken(ctx context.Context, idToken string) (Claims, error) {
	token, err := f.admin.VerifyIDToken(ctx, idToken)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims := Claims{UID: token.UID}
	if email, ok := token.Claims["email"].(string); ok {
		claims.Email = email
	}
	if name, ok := token.Claims["name"].(string); ok {
		claims.Name = name
	}
	if picture, ok := token.Claims["picture"].(string); ok {
		claims.Picture = picture
	}
	if verified, ok := token.Claims["email_verified"].(bool); ok {
		claims.EmailVerified = verified
	}
	return claims, nil
}

func (f *Firebase) CreateUser(ctx context.Context, u NewUser) (User, error) {
	params := (&fbauth.UserToCreate{}).
		Email(u.Email).
		Password(u.Password).
		EmailVerified(false)
	if strings.TrimSpace(u.DisplayName) != "" {
		params = params.DisplayName(u.DisplayName)
	}
	rec, err := f.admin.CreateUser(ctx, params)
	if err != nil {
		return User{}, mapAdminError(err)
	}
	return userFromRecord(rec), nil
}

func (f *Firebase) GetUser(ctx context.Context, uid string) (User, error) {
	rec, err := f.admin.GetUser(ctx, uid)
	if err != nil {
		return User{}, mapAdminError(err)
	}
	return userFromRecord(rec), nil
}

func (f *Firebase) UpdateProfile(ctx context.Context, uid string, upd ProfileUpdate) error {
	if upd.DisplayName == nil && upd.PhotoURL == nil {
		return nil
	}
	params := &fbauth.UserToUpdate{}
	if upd.DisplayName != nil {
		params = params.DisplayName(*upd.DisplayName)
	}
	if upd.PhotoURL != nil {
		params = params.PhotoURL(*upd.PhotoURL)
	}
	if _, err := f.admin.UpdateUser(ctx, uid, params); err != nil {
		return mapAdminError(err)
	}
	return nil
}

func (f *Firebase) UpdatePassword(ctx context.Context, uid, password string) error {
	if _, err := f.admin.UpdateUser(ctx, uid, (&fbauth.UserToUpdate{}).Password(password)); err != nil {
		return mapAdminError(err)
	}
	return nil
}

func (f *Firebase) RevokeSessions(ctx context.Context, uid string) error {
	if err := f.admin.RevokeRefreshTokens(ctx, uid); err != nil {
		return mapAdminError(err)
	}
	return nil
}

func (f *Firebase) SignIn(ctx context.Context, email, password string) (Session, error) {
	if f.toolkit == nil {
		return Session{}, ErrNotConfigured
	}
	return f.toolkit.SignInWithPassword(ctx, email, password)
}

func (f *Firebase) SendPasswordReset(ctx context.Context, email string) error {
	if f.toolkit != nil {
		return f.toolkit.SendPasswordReset(ctx, email)
	}
	link, err := f.admin.PasswordResetLink(ctx, email)
	if err != nil {
		return mapAdminError(err)
	}
	f.logActionLink("password_reset", map[string]any{"email": email}, link)
	return nil
}

func (f *Firebase) SendVerification(ctx context.Context, uid string) error {
	if f.toolkit != nil {
		custom, err := f.admin.CustomToken(ctx, uid)
		if err != nil {
			return mapAdminError(err)
		}
		session, err := f.toolkit.SignInWithCustomToken(ctx, custom)
		if err != nil {
			return err
		}
		return f.toolkit.SendVerification(ctx, session.IDToken)
	}
	user, err := f.GetUser(ctx, uid)
	if err != nil {
		return err
	}
	link, err := f.admin.EmailVerificationLink(ctx, user.Email)
	if err != nil {
		return mapAdminError(err)
	}
	f.logActionLink("verify_email", map[string]any{"uid": uid}, link)
	return nil
}

func userFromRecord(rec *fbauth.UserRecord) User {
	if rec == nil || rec.UserInfo == nil {
		return User{}
	}
	return User{
		UID:           rec.UID,
		Email:         rec.Email,
		DisplayName:   rec.DisplayName,
		PhotoURL:      rec.PhotoURL,
		EmailVerified: rec.EmailVerified,
	}
}

func mapAdminError(err error) error {
	switch {
	case err == nil:
		return nil
	case fbauth.IsUserNotFound(err):
		return fmt.Errorf("%w: %v", ErrUserNotFound, err)
	case fbauth.IsEmailAlreadyExists(err):
		return fmt.Errorf("%w: %v", ErrEmailExists, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("identity platform: %w", err)
	}
}

var _ Provider = (*Firebase)(nil)
