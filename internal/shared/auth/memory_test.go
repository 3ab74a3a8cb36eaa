package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRegisterSignInRevoke(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	u, err := m.CreateUser(ctx, NewUser{Email: "Ada@Example.com", Password: "secret1", DisplayName: "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", u.Email)

	_, err = m.CreateUser(ctx, NewUser{Email: "ada@example.com", Password: "other12"})
	assert.ErrorIs(t, err, ErrEmailExists)

	_, err = m.SignIn(ctx, "ada@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	session, err := m.SignIn(ctx, "ada@example.com", "secret1")
	require.NoError(t, err)

	claims, err := m.VerifyIDToken(ctx, session.IDToken)
	require.NoError(t, err)
	assert.Equal(t, u.UID, claims.UID)
	assert.Equal(t, "Ada", claims.Name)

	require.NoError(t, m.RevokeSessions(ctx, u.UID))
	_, err = m.VerifyIDToken(ctx, session.IDToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestMemoryRejectsForeignTokens(t *testing.T) {
	_, err := NewMemory().VerifyIDToken(context.Background(), "eyJhbGciOi")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestMemoryOutbox(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	u, err := m.CreateUser(ctx, NewUser{Email: "ada@example.com", Password: "secret1"})
	require.NoError(t, err)

	require.NoError(t, m.SendVerification(ctx, u.UID))
	require.NoError(t, m.SendPasswordReset(ctx, "ada@example.com"))

	assert.Equal(t, []Message{
		{Kind: "verify_email", Email: "ada@example.com"},
		{Kind: "password_reset", Email: "ada@example.com"},
	}, m.Outbox())
}
