package usage

import (
	"errors"
	"time"
)

const (
	PlanStarter  = "Starter"
	DefaultLimit = 10
	Window       = 7 * 24 * time.Hour
)

// ErrLimitReached indicates the user has no analyses left in the window.
var ErrLimitReached = errors.New("analysis limit reached")

// Usage is a user's analysis allowance for the current window.
type Usage struct {
	Plan     string    `json:"plan"`
	Limit    int       `json:"limit"`
	Used     int       `json:"used"`
	ResetsAt time.Time `json:"resetsAt"`
}

// Remaining returns how many analyses are left, never negative.
func (u Usage) Remaining() int {
	if u.Used >= u.Limit {
		return 0
	}
	return u.Limit - u.Used
}

func newAllowance(now time.Time) Usage {
	return Usage{
		Plan:     PlanStarter,
		Limit:    DefaultLimit,
		ResetsAt: now.UTC().Add(Window),
	}
}

// rollover starts a fresh window when the current one has ended.
func rollover(u Usage, now time.Time) (Usage, bool) {
	if now.Before(u.ResetsAt) {
		return u, false
	}
	u.Used = 0
	u.ResetsAt = now.UTC().Add(Window)
	return u, true
}
