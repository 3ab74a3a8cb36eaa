package usage

import (
	"context"
	"errors"

	"finreport-backend/internal/shared/telemetry"
)

// Store persists allowances. Implementations roll expired windows over on read.
type Store interface {
	EnsurePeriod(ctx context.Context, userID string) (Usage, error)
	Consume(ctx context.Context, userID string, n int) (Usage, error)
	Reset(ctx context.Context, userID string) (Usage, error)
}

// Service manages analysis allowances via an underlying store.
type Service struct {
	store Store
}

// NewService constructs a Service with an in-memory store.
func NewService() *Service {
	return &Service{store: NewMemoryStore()}
}

// NewServiceWithStore constructs a Service on the given store.
func NewServiceWithStore(s Store) *Service {
	return &Service{store: s}
}

// EnsurePeriod returns the current allowance, starting a new window if the
// previous one expired.
func (s *Service) EnsurePeriod(ctx context.Context, userID string) (Usage, error) {
	return s.store.EnsurePeriod(ctx, userID)
}

// CanConsume reports whether the user can consume n units.
func (s *Service) CanConsume(ctx context.Context, userID string, n int) (bool, Usage, error) {
	u, err := s.store.EnsurePeriod(ctx, userID)
	if err != nil {
		return false, Usage{}, err
	}
	if n <= 0 {
		return true, u, nil
	}
	return u.Used+n <= u.Limit, u, nil
}

// Consume increments usage by n, or fails with ErrLimitReached.
func (s *Service) Consume(ctx context.Context, userID string, n int) (Usage, error) {
	u, err := s.store.Consume(ctx, userID, n)
	if errors.Is(err, ErrLimitReached) {
		telemetry.Warn("usage.limit_reached", map[string]any{"user_id": userID})
	}
	return u, err
}

// Reset zeroes usage and starts a new window.
func (s *Service) Reset(ctx context.Context, userID string) (Usage, error) {
	return s.store.Reset(ctx, userID)
}
