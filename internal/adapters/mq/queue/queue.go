// Package queue holds ids of jobs waiting for submission to the scheduler.
//
// The queue only orders work: the store stays authoritative, so a lost or
// duplicated id is harmless; consumers re-read the job and skip it unless it
// is still pending.
package queue

import (
	"context"
	"sync"

	"github.com/okian/foldboard/pkg/metrics"
)

const defaultQueueCapacity = 10000

// Queue is a FIFO of job ids.
type Queue interface {
	// Enqueue appends id. It returns ErrFull when the queue is at capacity
	// and ErrClosed after Close.
	Enqueue(ctx context.Context, id string) error

	// TryDequeue pops the oldest id without blocking.
	TryDequeue(ctx context.Context) (string, bool, error)

	// Len returns the current number of queued ids.
	Len(ctx context.Context) (int, error)

	Close() error
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	ids      chan string
	capacity int
	mu       sync.RWMutex
	closed   bool
}

// NewInMemoryQueue creates a bounded in-process queue.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.ids = make(chan string, q.capacity)
	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	return q
}

func (q *InMemoryQueue) Enqueue(ctx context.Context, id string) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueRejected()
		return ErrClosed
	}
	select {
	case q.ids <- id:
		metrics.RecordQueueEnqueue()
		metrics.UpdateQueueSize(len(q.ids))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		metrics.RecordQueueRejected()
		metrics.RecordErrorByComponent("queue", "queue_full")
		return ErrFull
	}
}

func (q *InMemoryQueue) TryDequeue(ctx context.Context) (string, bool, error) {
	select {
	case id, ok := <-q.ids:
		if !ok {
			return "", false, nil
		}
		metrics.UpdateQueueSize(len(q.ids))
		return id, true, nil
	case <-ctx.Done():
		return "", false, ctx.Err()
	default:
		return "", false, nil
	}
}

func (q *InMemoryQueue) Len(ctx context.Context) (int, error) {
	n := len(q.ids)
	metrics.UpdateQueueSize(n)
	return n, nil
}

// Close stops accepting ids. Ids already queued can still be drained.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	close(q.ids)
	q.closed = true
	return nil
}
