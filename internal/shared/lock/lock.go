package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrBusy is returned when the key is already held.
var ErrBusy = errors.New("operation already in progress")

// Locker grants short-lived exclusive holds on a key.
type Locker interface {
	// Acquire returns a release func or ErrBusy. Holds expire after ttl even
	// if never released.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// Renewable is a Locker whose holds can be kept alive until released.
type Renewable interface {
	Locker
	// AcquireRenewing is Acquire with the hold renewed every ttl/3 until
	// release. A holder that stops renewing loses the key after ttl.
	AcquireRenewing(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// AcquireRenewing takes key on l, renewing the hold when l supports it.
func AcquireRenewing(ctx context.Context, l Locker, key string, ttl time.Duration) (func(), error) {
	if r, ok := l.(Renewable); ok {
		return r.AcquireRenewing(ctx, key, ttl)
	}
	return l.Acquire(ctx, key, ttl)
}

// renewEvery calls renew every ttl/3 until stop is called or renew reports
// the hold was lost.
func renewEvery(ttl time.Duration, renew func() bool) (stop func()) {
	interval := ttl / 3
	if interval < time.Millisecond {
		interval = time.Millisecond
	}
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if !renew() {
					return
				}
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

// Memory is a process-local Locker.
type Memory struct {
	mu   sync.Mutex
	held map[string]memoryHold
	now  func() time.Time
}

type memoryHold struct {
	token   string
	expires time.Time
}

func NewMemory() *Memory {
	return &Memory{held: make(map[string]memoryHold), now: time.Now}
}

func (m *Memory) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token, err := m.take(ctx, key, ttl)
	if err != nil {
		return nil, err
	}
	return m.releaser(key, token), nil
}

func (m *Memory) AcquireRenewing(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token, err := m.take(ctx, key, ttl)
	if err != nil {
		return nil, err
	}
	stop := renewEvery(ttl, func() bool { return m.renew(key, token, ttl) })
	release := m.releaser(key, token)
	return func() {
		stop()
		release()
	}, nil
}

func (m *Memory) take(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if h, ok := m.held[key]; ok && now.Before(h.expires) {
		return "", ErrBusy
	}
	token := uuid.NewString()
	m.held[key] = memoryHold{token: token, expires: now.Add(ttl)}
	return token, nil
}

func (m *Memory) renew(key, token string, ttl time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.held[key]
	if !ok || h.token != token {
		return false
	}
	h.expires = m.now().Add(ttl)
	m.held[key] = h
	return true
}

func (m *Memory) releaser(key, token string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if h, ok := m.held[key]; ok && h.token == token {
				delete(m.held, key)
			}
		})
	}
}

// releaseScript deletes the key only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript resets the expiry only if the key still carries our token.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Redis is a Locker shared across processes.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	full := r.prefix + key
	token, err := r.take(ctx, full, ttl)
	if err != nil {
		return nil, err
	}
	return r.releaser(full, token), nil
}

func (r *Redis) AcquireRenewing(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	full := r.prefix + key
	token, err := r.take(ctx, full, ttl)
	if err != nil {
		return nil, err
	}
	stop := renewEvery(ttl, func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		n, err := renewScript.Run(ctx, r.client, []string{full}, token, ttl.Milliseconds()).Int()
		// A transient error keeps renewing; a lost key stops.
		return err != nil || n == 1
	})
	release := r.releaser(full, token)
	return func() {
		stop()
		release()
	}, nil
}

func (r *Redis) take(ctx context.Context, full string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, full, token, ttl).Result()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrBusy
	}
	return token, nil
}

func (r *Redis) releaser(full, token string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			// The caller's context may already be done.
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = releaseScript.Run(ctx, r.client, []string{full}, token).Err()
		})
	}
}

var (
	_ Renewable = (*Memory)(nil)
	_ Renewable = (*Redis)(nil)
)
