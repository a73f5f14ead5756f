// Package lock keeps two runs of the same pass from overlapping.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Release gives a lock back. It is safe to call more than once.
type Release func(ctx context.Context) error

// Locker hands out named, non-blocking locks.
type Locker interface {
	// TryAcquire returns ok=false without waiting when name is held elsewhere.
	TryAcquire(ctx context.Context, name string, ttl time.Duration) (Release, bool, error)
}

// Local locks within one process; ttl is ignored.
type Local struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewLocal creates an in-process Locker.
func NewLocal() *Local {
	return &Local{held: map[string]bool{}}
}

func (l *Local) TryAcquire(ctx context.Context, name string, ttl time.Duration) (Release, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[name] {
		return nil, false, nil
	}
	l.held[name] = true
	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, name)
			l.mu.Unlock()
		})
		return nil
	}, true, nil
}

// releaseScript deletes the key only while it still holds our value.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
else
    return 0
end
`)

// Redis locks across processes with SET NX PX; the ttl bounds how long a
// crashed holder blocks others.
type Redis struct {
	rdb    *redis.Client
	prefix string
}

// NewRedis creates a Locker whose keys are prefix + name.
func NewRedis(rdb *redis.Client, prefix string) *Redis {
	return &Redis{rdb: rdb, prefix: prefix}
}

// Key returns the Redis key used for name.
func (r *Redis) Key(name string) string { return r.prefix + name }

func (r *Redis) TryAcquire(ctx context.Context, name string, ttl time.Duration) (Release, bool, error) {
	key, value := r.Key(name), uuid.NewString()
	ok, err := r.rdb.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	var once sync.Once
	return func(ctx context.Context) error {
		var rerr error
		once.Do(func() {
			err := releaseScript.Run(ctx, r.rdb, []string{key}, value).Err()
			if err != nil && !errors.Is(err, redis.Nil) {
				rerr = fmt.Errorf("release %s: %w", key, err)
			}
		})
		return rerr
	}, true, nil
}
