// Package locks provides the short-lived named locks that keep background
// jobs from running on two instances at once.
package locks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Locker hands out named locks owned by one holder until released or
// expired.
type Locker interface {
	TryAcquire(ctx context.Context, name, holder string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, name, holder string) error
}

// RedisLocker stores locks as Redis keys so every instance sees them.
type RedisLocker struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisLocker creates a locker on client.
func NewRedisLocker(client redis.UniversalClient) *RedisLocker {
	return &RedisLocker{client: client, prefix: "lock:"}
}

// TryAcquire sets the lock key if nobody holds it.
func (l *RedisLocker) TryAcquire(ctx context.Context, name, holder string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.prefix+name, holder, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	return ok, nil
}

// releaseScript deletes the key only while holder still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// Release drops the lock if holder owns it.
func (l *RedisLocker) Release(ctx context.Context, name, holder string) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.prefix + name}, holder).Err(); err != nil {
		return fmt.Errorf("release lock %s: %w", name, err)
	}
	return nil
}

// LocalLocker keeps locks in process memory, for single-instance
// deployments and tests.
type LocalLocker struct {
	mu    sync.Mutex
	held  map[string]localLock
	clock func() time.Time
}

type localLock struct {
	holder  string
	expires time.Time
}

// NewLocalLocker creates an empty in-process locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]localLock), clock: time.Now}
}

// TryAcquire takes the lock if it is free or expired.
func (l *LocalLocker) TryAcquire(_ context.Context, name, holder string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if cur, ok := l.held[name]; ok && now.Before(cur.expires) {
		return false, nil
	}
	l.held[name] = localLock{holder: holder, expires: now.Add(ttl)}
	return true, nil
}

// Release drops the lock if holder owns it.
func (l *LocalLocker) Release(_ context.Context, name, holder string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if cur, ok := l.held[name]; ok && cur.holder == holder {
		delete(l.held, name)
	}
	return nil
}
