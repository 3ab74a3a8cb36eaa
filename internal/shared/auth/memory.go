package auth

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const memoryTokenPrefix = "dev:"

// Message is an email the memory provider would have sent.
type Message struct {
	Kind  string
	Email string
}

type memoryUser struct {
	User
	password string
	revoked  bool
}

// Memory is an in-process identity provider for dev and tests.
// ID tokens have the form "dev:<uid>".
type Memory struct {
	mu      sync.Mutex
	users   map[string]*memoryUser
	byEmail map[string]string
	outbox  []Message
}

// NewMemory constructs an empty Memory provider.
func NewMemory() *Memory {
	return &Memory{
		users:   make(map[string]*memoryUser),
		byEmail: make(map[string]string),
	}
}

// Token returns the ID token the memory provider accepts for uid.
func Token(uid string) string {
	return memoryTokenPrefix + uid
}

func (m *Memory) VerifyIDToken(ctx context.Context, idToken string) (Claims, error) {
	if err := ctx.Err(); err != nil {
		return Claims{}, err
	}
	if !strings.HasPrefix(idToken, memoryTokenPrefix) {
		return Claims{}, ErrInvalidToken
	}
	uid := strings.TrimPrefix(idToken, memoryTokenPrefix)
	if uid == "" {
		return Claims{}, ErrInvalidToken
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[uid]
	if !ok {
		// Unknown users are accepted so dev clients can skip registration.
		return Claims{UID: uid}, nil
	}
	if u.revoked {
		return Claims{}, ErrInvalidToken
	}
	return Claims{
		UID:           u.UID,
		Email:         u.Email,
		Name:          u.DisplayName,
		Picture:       u.PhotoURL,
		EmailVerified: u.EmailVerified,
	}, nil
}

func (m *Memory) CreateUser(ctx context.Context, nu NewUser) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	email := strings.ToLower(strings.TrimSpace(nu.Email))
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byEmail[email]; exists {
		return User{}, ErrEmailExists
	}
	u := &memoryUser{
		User: User{
			UID:         uuid.NewString(),
			Email:       email,
			DisplayName: nu.DisplayName,
		},
		password: nu.Password,
	}
	m.users[u.UID] = u
	m.byEmail[email] = u.UID
	return u.User, nil
}

func (m *Memory) GetUser(ctx context.Context, uid string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[uid]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u.User, nil
}

func (m *Memory) UpdateProfile(ctx context.Context, uid string, upd ProfileUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[uid]
	if !ok {
		return ErrUserNotFound
	}
	if upd.DisplayName != nil {
		u.DisplayName = *upd.DisplayName
	}
	if upd.PhotoURL != nil {
		u.PhotoURL = *upd.PhotoURL
	}
	return nil
}

func (m *Memory) UpdatePassword(ctx context.Context, uid, password string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[uid]
	if !ok {
		return ErrUserNotFound
	}
	u.password = password
	return nil
}

func (m *Memory) RevokeSessions(ctx context.Context, uid string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[uid]
	if !ok {
		return ErrUserNotFound
	}
	u.revoked = true
	return nil
}

func (m *Memory) SignIn(ctx context.Context, email, password string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	uid, ok := m.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return Session{}, ErrInvalidCredentials
	}
	u := m.users[uid]
	if u.password != password {
		return Session{}, ErrInvalidCredentials
	}
	u.revoked = false
	return Session{
		UID:          u.UID,
		Email:        u.Email,
		IDToken:      Token(u.UID),
		RefreshToken: uuid.NewString(),
		ExpiresIn:    3600,
	}, nil
}

func (m *Memory) SendPasswordReset(ctx context.Context, email string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outbox = append(m.outbox, Message{Kind: "password_reset", Email: strings.ToLower(strings.TrimSpace(email))})
	return nil
}

func (m *Memory) SendVerification(ctx context.Context, uid string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[uid]
	if !ok {
		return ErrUserNotFound
	}
	m.outbox = append(m.outbox, Message{Kind: "verify_email", Email: u.Email})
	return nil
}

// Outbox returns a copy of the emails sent so far.
func (m *Memory) Outbox() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.outbox))
	copy(out, m.outbox)
	return out
}

var _ Provider = (*Memory)(nil)
