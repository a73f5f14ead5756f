package queue_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/okian/foldboard/internal/adapters/mq/queue"
)

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := queue.NewInMemoryQueue(queue.WithCapacity(2))
	ctx := context.Background()

	if l, _ := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
	if err := q.Enqueue(ctx, "job-1"); err != nil {
		t.Fatalf("expected enqueue to succeed: %v", err)
	}
	if l, _ := q.Len(ctx); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	id, ok, err := q.TryDequeue(ctx)
	if err != nil || !ok || id != "job-1" {
		t.Errorf("expected job-1, got %q ok=%v err=%v", id, ok, err)
	}
	if _, ok, _ := q.TryDequeue(ctx); ok {
		t.Error("expected empty queue")
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := queue.NewInMemoryQueue(queue.WithCapacity(2))
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		if err := q.Enqueue(ctx, id); err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
	}
	if err := q.Enqueue(ctx, "c"); !errors.Is(err, queue.ErrFull) {
		t.Errorf("expected ErrFull, got %v", err)
	}
	if l, _ := q.Len(ctx); l != 2 {
		t.Errorf("expected length 2, got %d", l)
	}
}

func TestInMemoryQueue_FIFO(t *testing.T) {
	q := queue.NewInMemoryQueue(queue.WithCapacity(10))
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_ = q.Enqueue(ctx, fmt.Sprint(i))
	}
	for i := 0; i < 5; i++ {
		id, _, _ := q.TryDequeue(ctx)
		if id != fmt.Sprint(i) {
			t.Fatalf("expected %d, got %s", i, id)
		}
	}
}

func TestInMemoryQueue_Close(t *testing.T) {
	q := queue.NewInMemoryQueue(queue.WithCapacity(4))
	ctx := context.Background()
	_ = q.Enqueue(ctx, "left")

	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := q.Enqueue(ctx, "late"); !errors.Is(err, queue.ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if id, ok, _ := q.TryDequeue(ctx); !ok || id != "left" {
		t.Errorf("expected queued id to drain after close, got %q", id)
	}
	if _, ok, _ := q.TryDequeue(ctx); ok {
		t.Error("expected drained queue")
	}
}

func TestInMemoryQueue_ConcurrentAccess(t *testing.T) {
	q := queue.NewInMemoryQueue(queue.WithCapacity(1000))
	ctx := context.Background()

	var wg sync.WaitGroup
	for p := 0; p < 10; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				if err := q.Enqueue(ctx, fmt.Sprintf("%d-%d", p, i)); err != nil {
					t.Errorf("enqueue: %v", err)
				}
			}
		}(p)
	}
	wg.Wait()

	seen := map[string]bool{}
	for {
		id, ok, _ := q.TryDequeue(ctx)
		if !ok {
			break
		}
		if seen[id] {
			t.Fatalf("duplicate %s", id)
		}
		seen[id] = true
	}
	if len(seen) != 500 {
		t.Errorf("expected 500 ids, got %d", len(seen))
	}
}
