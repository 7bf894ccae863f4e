package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	platformredis "loanflow/internal/platform/redis"
)

// Locker provides a mutually exclusive lease per application id so a job for
// one application never runs twice concurrently, while unrelated
// applications process in parallel. The lease bounds how long a crashed
// worker can block reprocessing.
type Locker interface {
	// Acquire returns a release function when the lock was taken, or
	// ok=false when another holder has it.
	Acquire(ctx context.Context, key string, lease time.Duration) (release func(), ok bool, err error)
}

// releaseScript deletes the lock only when the token still matches, so an
// expired lease taken over by another worker is never released by the
// original holder.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// RedisLocker implements the lease with SET NX PX.
type RedisLocker struct {
	client *platformredis.Client
}

func NewRedisLocker(client *platformredis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, lease time.Duration) (func(), bool, error) {
	token := uuid.NewString()
	fullKey := "loanflow:joblock:" + key

	acquired, err := l.client.SetNX(ctx, fullKey, token, lease).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire job lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}

	release := func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := l.client.Eval(rctx, releaseScript, []string{fullKey}, token).Err(); err != nil && err != redis.Nil {
			// Lease expiry cleans up eventually.
			return
		}
	}
	return release, true, nil
}

// LocalLocker is the in-process fallback when redis is not configured. The
// lease still expires so a stuck goroutine cannot block a key forever.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]time.Time)}
}

func (l *LocalLocker) Acquire(_ context.Context, key string, lease time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if expiry, held := l.locks[key]; held && now.Before(expiry) {
		return nil, false, nil
	}
	expiry := now.Add(lease)
	l.locks[key] = expiry

	release := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if current, held := l.locks[key]; held && current.Equal(expiry) {
			delete(l.locks, key)
		}
	}
	return release, true, nil
}
