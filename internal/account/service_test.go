package account

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finreport-backend/internal/profile"
	"finreport-backend/internal/shared/auth"
)

// countingProvider records remote calls on top of the memory provider.
type countingProvider struct {
	*auth.Memory
	calls           int
	verificationErr error
}

func (p *countingProvider) CreateUser(ctx context.Context, u auth.NewUser) (auth.User, error) {
	p.calls++
	return p.Memory.CreateUser(ctx, u)
}

func (p *countingProvider) UpdatePassword(ctx context.Context, uid, password string) error {
	p.calls++
	return p.Memory.UpdatePassword(ctx, uid, password)
}

func (p *countingProvider) SendVerification(ctx context.Context, uid string) error {
	p.calls++
	if p.verificationErr != nil {
		return p.verificationErr
	}
	return p.Memory.SendVerification(ctx, uid)
}

func newTestService() (*Service, *countingProvider, *profile.MemoryStore) {
	provider := &countingProvider{Memory: auth.NewMemory()}
	store := profile.NewMemoryStore()
	return NewService(provider, profile.NewService(store, provider, nil, nil)), provider, store
}

func TestRegisterCreatesUserProfileAndSendsVerification(t *testing.T) {
	svc, provider, store := newTestService()
	ctx := context.Background()

	reg, err := svc.Register(ctx, " ada@example.com ", "secret1", "Ada")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", reg.User.Email)

	p, err := store.Get(ctx, reg.User.UID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", p.DisplayName)
	assert.Equal(t, "", p.PhotoURL)
	assert.Equal(t, p.CreatedAt, p.UpdatedAt)

	assert.Equal(t, []auth.Message{{Kind: "verify_email", Email: "ada@example.com"}}, provider.Outbox())
}

func TestRegisterSurvivesVerificationFailure(t *testing.T) {
	svc, provider, store := newTestService()
	provider.verificationErr = errors.New("quota exceeded")

	reg, err := svc.Register(context.Background(), "ada@example.com", "secret1", "Ada")
	require.NoError(t, err)
	_, err = store.Get(context.Background(), reg.User.UID)
	assert.NoError(t, err)
}

func TestRegisterRejectsLocally(t *testing.T) {
	svc, provider, _ := newTestService()

	_, err := svc.Register(context.Background(), "ada@example.com", "12345", "Ada")
	assert.ErrorIs(t, err, ErrPasswordTooShort)
	_, err = svc.Register(context.Background(), "not-an-email", "secret1", "Ada")
	assert.ErrorIs(t, err, ErrInvalidEmail)
	assert.Zero(t, provider.calls)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.Register(context.Background(), "ada@example.com", "secret1", "Ada")
	require.NoError(t, err)
	_, err = svc.Register(context.Background(), "ada@example.com", "secret2", "Ada")
	assert.ErrorIs(t, err, auth.ErrEmailExists)
}

func TestChangePasswordValidatesBeforeRemoteCall(t *testing.T) {
	svc, provider, _ := newTestService()

	err := svc.ChangePassword(context.Background(), "u1", "abcdef", "abcdeg")
	assert.ErrorIs(t, err, ErrPasswordMismatch)
	assert.Equal(t, "Passwords do not match", err.Error())

	err = svc.ChangePassword(context.Background(), "u1", "abc", "abc")
	assert.ErrorIs(t, err, ErrPasswordTooShort)
	assert.Equal(t, "Password must be at least 6 characters", err.Error())

	assert.Zero(t, provider.calls)
}

func TestChangePasswordThenSignIn(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	reg, err := svc.Register(ctx, "ada@example.com", "secret1", "Ada")
	require.NoError(t, err)

	require.NoError(t, svc.ChangePassword(ctx, reg.User.UID, "better-secret", "better-secret"))

	_, err = svc.SignIn(ctx, "ada@example.com", "secret1")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	session, err := svc.SignIn(ctx, "ada@example.com", "better-secret")
	require.NoError(t, err)
	assert.Equal(t, reg.User.UID, session.UID)
	assert.Equal(t, auth.Token(reg.User.UID), session.IDToken)
}

func TestSignOutRevokesTokens(t *testing.T) {
	svc, provider, _ := newTestService()
	ctx := context.Background()
	reg, err := svc.Register(ctx, "ada@example.com", "secret1", "Ada")
	require.NoError(t, err)

	require.NoError(t, svc.SignOut(ctx, reg.User.UID))
	_, err = provider.VerifyIDToken(ctx, auth.Token(reg.User.UID))
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestSendPasswordReset(t *testing.T) {
	svc, provider, _ := newTestService()
	require.NoError(t, svc.SendPasswordReset(context.Background(), "ada@example.com"))
	assert.Equal(t, []auth.Message{{Kind: "password_reset", Email: "ada@example.com"}}, provider.Outbox())
}
