package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"

	"github.com/okian/foldboard/pkg/metrics"
)

// RedisConfig locates the queue list.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Key      string
	Capacity int
}

// RedisQueue keeps ids in a Redis list: LPUSH to enqueue, RPOP to dequeue.
// Several orchestrator processes can share it.
type RedisQueue struct {
	rdb      *redis.Client
	key      string
	capacity int
}

// NewRedisClient connects and pings, retrying while Redis comes up.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	backoff := retry.WithMaxRetries(5, retry.NewExponential(200*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := rdb.Ping(ctx).Err(); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect redis %s: %w", cfg.Addr, err)
	}
	return rdb, nil
}

// NewRedisQueue wraps an existing client.
func NewRedisQueue(rdb *redis.Client, key string, capacity int) *RedisQueue {
	if capacity <= 0 {
		capacity = defaultQueueCapacity
	}
	metrics.UpdateQueueCapacity(capacity)
	return &RedisQueue{rdb: rdb, key: key, capacity: capacity}
}

// Enqueue checks capacity before pushing; concurrent producers may overshoot it slightly.
func (q *RedisQueue) Enqueue(ctx context.Context, id string) error {
	n, err := q.rdb.LLen(ctx, q.key).Result()
	if err != nil {
		return fmt.Errorf("queue length: %w", err)
	}
	if int(n) >= q.capacity {
		metrics.RecordQueueRejected()
		return ErrFull
	}
	if err := q.rdb.LPush(ctx, q.key, id).Err(); err != nil {
		metrics.RecordErrorByComponent("queue", "redis_push")
		return fmt.Errorf("enqueue %s: %w", id, err)
	}
	metrics.RecordQueueEnqueue()
	metrics.UpdateQueueSize(int(n) + 1)
	return nil
}

func (q *RedisQueue) TryDequeue(ctx context.Context) (string, bool, error) {
	id, err := q.rdb.RPop(ctx, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("dequeue: %w", err)
	}
	return id, true, nil
}

func (q *RedisQueue) Len(ctx context.Context) (int, error) {
	n, err := q.rdb.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("queue length: %w", err)
	}
	metrics.UpdateQueueSize(int(n))
	return int(n), nil
}

// Close leaves the shared client open; its owner closes it.
func (q *RedisQueue) Close() error { return nil }
