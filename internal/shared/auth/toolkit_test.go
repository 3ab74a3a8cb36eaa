package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolkitSignInWithPassword(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/accounts:signInWithPassword", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ada@example.com", body["email"])
		assert.Equal(t, true, body["returnSecureToken"])
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"localId":"uid-1","email":"ada@example.com","idToken":"id","refreshToken":"rt","expiresIn":"3600"}`))
	}))
	defer server.Close()

	tk := NewToolkit("test-key", server.URL)
	session, err := tk.SignInWithPassword(context.Background(), "ada@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "uid-1", session.UID)
	assert.Equal(t, "id", session.IDToken)
	assert.Equal(t, 3600, session.ExpiresIn)
}

func TestToolkitMapsCredentialErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":400,"message":"INVALID_LOGIN_CREDENTIALS"}}`))
	}))
	defer server.Close()

	_, err := NewToolkit("k", server.URL).SignInWithPassword(context.Background(), "a@b.c", "bad")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestToolkitSendPasswordReset(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/accounts:sendOobCode", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"email":"ada@example.com"}`))
	}))
	defer server.Close()

	require.NoError(t, NewToolkit("k", server.URL).SendPasswordReset(context.Background(), "ada@example.com"))
	assert.Equal(t, "PASSWORD_RESET", got["requestType"])
	assert.Equal(t, "ada@example.com", got["email"])
}

func TestToolkitRequiresAPIKey(t *testing.T) {
	err := NewToolkit("", "").SendPasswordReset(context.Background(), "a@b.c")
	assert.ErrorIs(t, err, ErrNotConfigured)
}
