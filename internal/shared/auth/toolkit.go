package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultToolkitBaseURL = "https://identitytoolkit.googleapis.com/v1"

// Toolkit calls the Identity Toolkit REST API for the flows the Admin SDK
// cannot perform: password sign-in and platform-sent emails.
type Toolkit struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewToolkit constructs a Toolkit client. baseURL may be empty.
func NewToolkit(apiKey, baseURL string) *Toolkit {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultToolkitBaseURL
	}
	return &Toolkit{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type toolkitSession struct {
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
}

type toolkitError struct {
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// SignInWithPassword exchanges email and password for platform tokens.
func (t *Toolkit) SignInWithPassword(ctx context.Context, email, password string) (Session, error) {
	var out toolkitSession
	err := t.call(ctx, "accounts:signInWithPassword", map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}, &out)
	if err != nil {
		return Session{}, err
	}
	return out.session(), nil
}

// SignInWithCustomToken exchanges an Admin SDK custom token for an ID token.
func (t *Toolkit) SignInWithCustomToken(ctx context.Context, token string) (Session, error) {
	var out toolkitSession
	err := t.call(ctx, "accounts:signInWithCustomToken", map[string]any{
		"token":             token,
		"returnSecureToken": true,
	}, &out)
	if err != nil {
		return Session{}, err
	}
	return out.session(), nil
}

// SendPasswordReset asks the platform to email a reset link.
func (t *Toolkit) SendPasswordReset(ctx context.Context, email string) error {
	return t.call(ctx, "accounts:sendOobCode", map[string]any{
		"requestType": "PASSWORD_RESET",
		"email":       email,
	}, nil)
}

// SendVerification asks the platform to email a verification link to the
// owner of idToken.
func (t *Toolkit) SendVerification(ctx context.Context, idToken string) error {
	return t.call(ctx, "accounts:sendOobCode", map[string]any{
		"requestType": "VERIFY_EMAIL",
		"idToken":     idToken,
	}, nil)
}

func (t *Toolkit) call(ctx context.Context, method string, body any, out any) error {
	if strings.TrimSpace(t.apiKey) == "" {
		return ErrNotConfigured
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	endpoint := t.baseURL + "/" + method + "?key=" + url.QueryEscape(t.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("identity toolkit %s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("identity toolkit %s: read body: %w", method, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return toolkitFailure(method, resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("identity toolkit %s: decode: %w", method, err)
	}
	return nil
}

func toolkitFailure(method string, status int, raw []byte) error {
	var parsed toolkitError
	message := ""
	if err := json.Unmarshal(raw, &parsed); err == nil && parsed.Error != nil {
		message = parsed.Error.Message
	}
	// Messages look like "INVALID_PASSWORD" or "EMAIL_NOT_FOUND : extra detail".
	code := strings.TrimSpace(strings.SplitN(message, ":", 2)[0])
	switch code {
	case "EMAIL_NOT_FOUND", "INVALID_PASSWORD", "INVALID_LOGIN_CREDENTIALS", "USER_DISABLED":
		return ErrInvalidCredentials
	case "EMAIL_EXISTS":
		return ErrEmailExists
	case "USER_NOT_FOUND":
		return ErrUserNotFound
	}
	if message == "" {
		message = http.StatusText(status)
	}
	return fmt.Errorf("identity toolkit %s: status %d: %s", method, status, message)
}

func (s toolkitSession) session() Session {
	expires, _ := strconv.Atoi(s.ExpiresIn)
	return Session{
		UID:          s.LocalID,
		Email:        s.Email,
		IDToken:      s.IDToken,
		RefreshToken: s.RefreshToken,
		ExpiresIn:    expires,
	}
}
