package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"finreport-backend/internal/extract"
	"finreport-backend/internal/report"
)

// ErrNotFound is returned for missing, expired or foreign sessions.
var ErrNotFound = errors.New("report not found")

// Session is an analyzed upload kept for display and export.
type Session struct {
	ID        string             `json:"id"`
	UserID    string             `json:"userId"`
	Upload    extract.Inspection `json:"upload"`
	Report    report.ReportData  `json:"report"`
	Metrics   []string           `json:"metrics"`
	HasChart  bool               `json:"hasChart"`
	Remaining int                `json:"remaining"`
	CreatedAt time.Time          `json:"createdAt"`
	ExpiresAt time.Time          `json:"expiresAt"`
}

// SessionStore keeps sessions until their TTL runs out.
type SessionStore interface {
	Save(ctx context.Context, s Session, ttl time.Duration) error
	Load(ctx context.Context, id string) (Session, error)
}

type MemorySessions struct {
	mu       sync.Mutex
	sessions map[string]memorySession
	now      func() time.Time
}

type memorySession struct {
	session Session
	expires time.Time
}

func NewMemorySessions() *MemorySessions {
	return &MemorySessions{sessions: make(map[string]memorySession), now: time.Now}
}

func (m *MemorySessions) Save(ctx context.Context, s Session, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for id, held := range m.sessions {
		if !now.Before(held.expires) {
			delete(m.sessions, id)
		}
	}
	m.sessions[s.ID] = memorySession{session: s, expires: now.Add(ttl)}
	return nil
}

func (m *MemorySessions) Load(ctx context.Context, id string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	held, ok := m.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	if !m.now().Before(held.expires) {
		delete(m.sessions, id)
		return Session{}, ErrNotFound
	}
	return held.session, nil
}

// RedisSessions stores sessions as JSON values with a key TTL.
type RedisSessions struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisSessions(client redis.UniversalClient, prefix string) *RedisSessions {
	return &RedisSessions{client: client, prefix: prefix}
}

func (r *RedisSessions) key(id string) string {
	return r.prefix + "report:" + id
}

func (r *RedisSessions) Save(ctx context.Context, s Session, ttl time.Duration) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := r.client.Set(ctx, r.key(s.ID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}
	return nil
}

func (r *RedisSessions) Load(ctx context.Context, id string) (Session, error) {
	raw, err := r.client.Get(ctx, r.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Session{}, ErrNotFound
		}
		return Session{}, fmt.Errorf("redis get session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return Session{}, fmt.Errorf("decode session: %w", err)
	}
	return s, nil
}

var (
	_ SessionStore = (*MemorySessions)(nil)
	_ SessionStore = (*RedisSessions)(nil)
)
