package health

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"finreport-backend/internal/shared/telemetry"
)

const defaultCheckTimeout = 3 * time.Second

// Check probes one dependency.
type Check func(ctx context.Context) error

// Service runs the registered dependency checks.
type Service struct {
	mu      sync.RWMutex
	checks  map[string]Check
	timeout time.Duration
}

// NewService constructs a health service with no checks.
func NewService() *Service {
	return &Service{checks: make(map[string]Check), timeout: defaultCheckTimeout}
}

// Register adds a named check. A later registration under the same name wins.
func (s *Service) Register(name string, check Check) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[name] = check
}

// Status is the health payload. OK stays true while the process serves
// requests; Degraded lists failing dependencies.
type Status struct {
	OK       bool              `json:"ok"`
	Degraded []string          `json:"degraded,omitempty"`
	Checks   map[string]string `json:"checks,omitempty"`
}

// Status runs every check concurrently, each under the check timeout.
func (s *Service) Status(ctx context.Context) Status {
	s.mu.RLock()
	checks := make(map[string]Check, len(s.checks))
	for name, check := range s.checks {
		checks[name] = check
	}
	s.mu.RUnlock()

	out := Status{OK: true}
	if len(checks) == 0 {
		return out
	}
	out.Checks = make(map[string]string, len(checks))

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for name, check := range checks {
		wg.Add(1)
		go func(name string, check Check) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()
			result := "ok"
			if err := check(cctx); err != nil {
				result = "error"
				if errors.Is(err, context.DeadlineExceeded) {
					result = "timeout"
				}
				telemetry.Warn("health.check_failed", map[string]any{
					"check": name,
					"error": err.Error(),
				})
			}
			mu.Lock()
			out.Checks[name] = result
			if result != "ok" {
				out.Degraded = append(out.Degraded, name)
			}
			mu.Unlock()
		}(name, check)
	}
	wg.Wait()
	sort.Strings(out.Degraded)
	return out
}
