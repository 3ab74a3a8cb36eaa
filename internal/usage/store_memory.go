package usage

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps allowances in process memory.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]Usage
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]Usage), now: time.Now}
}

func (s *MemoryStore) current(userID string) Usage {
	now := s.now().UTC()
	u, ok := s.data[userID]
	if !ok {
		u = newAllowance(now)
	}
	u, _ = rollover(u, now)
	return u
}

func (s *MemoryStore) EnsurePeriod(ctx context.Context, userID string) (Usage, error) {
	if err := ctx.Err(); err != nil {
		return Usage{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.current(userID)
	s.data[userID] = u
	return u, nil
}

func (s *MemoryStore) Consume(ctx context.Context, userID string, n int) (Usage, error) {
	if err := ctx.Err(); err != nil {
		return Usage{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.current(userID)
	if n > 0 && u.Used+n > u.Limit {
		s.data[userID] = u
		return u, ErrLimitReached
	}
	if n > 0 {
		u.Used += n
	}
	s.data[userID] = u
	return u, nil
}

func (s *MemoryStore) Reset(ctx context.Context, userID string) (Usage, error) {
	if err := ctx.Err(); err != nil {
		return Usage{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.current(userID)
	u.Used = 0
	u.ResetsAt = s.now().UTC().Add(Window)
	s.data[userID] = u
	return u, nil
}

var _ Store = (*MemoryStore)(nil)
