package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long a crashed holder can keep a lock.
const DefaultTTL = 30 * time.Minute

// releaseScript deletes the key only when it is still owned by the caller.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements named advisory locks on top of SET NX PX.
type RedisLocker struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string

	mu     sync.Mutex
	owners map[string]string
}

// NewRedisLocker creates a locker. A non-positive ttl falls back to DefaultTTL.
func NewRedisLocker(rdb *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisLocker{rdb: rdb, ttl: ttl, prefix: "lock:", owners: make(map[string]string)}
}

func (l *RedisLocker) key(name string) string {
	return l.prefix + name
}

// Acquire tries once to take the named lock. It never blocks.
func (l *RedisLocker) Acquire(ctx context.Context, name string) (bool, error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, l.key(name), token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("lock %s: %w", name, err)
	}
	if !ok {
		return false, nil
	}
	l.mu.Lock()
	l.owners[name] = token
	l.mu.Unlock()
	return true, nil
}

// Release drops the lock if this locker still owns it. Releasing a lock that
// expired or was never held is not an error.
func (l *RedisLocker) Release(ctx context.Context, name string) error {
	l.mu.Lock()
	token, ok := l.owners[name]
	delete(l.owners, name)
	l.mu.Unlock()
	if !ok {
		return nil
	}
	if err := releaseScript.Run(ctx, l.rdb, []string{l.key(name)}, token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("release lock %s: %w", name, err)
	}
	return nil
}

// ContributionLockName is the per-contribution lock used while recording
// refunds.
func ContributionLockName(contributionID int64) string {
	return fmt.Sprintf("data.contribute.contribution.%d", contributionID)
}
