// Package worker runs batches of independent tasks with bounded concurrency.
package worker

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/okian/foldboard/pkg/logger"
	"github.com/okian/foldboard/pkg/metrics"
)

// Task is one unit of work. ID is used for logging.
type Task struct {
	ID  string
	Run func(ctx context.Context) error
}

// Stats summarizes one Process call.
type Stats struct {
	Done    int
	Failed  int
	Skipped int
}

// Pool bounds how many tasks run at once across all Process calls.
type Pool struct {
	name   string
	size   int64
	sem    *semaphore.Weighted
	active atomic.Int64
	logger logger.Logger
}

// NewPool creates a pool running at most size tasks concurrently.
// size < 1 uses the number of CPUs.
func NewPool(size int, opts ...Option) *Pool {
	if size < 1 {
		size = runtime.NumCPU()
	}
	p := &Pool{
		name: "worker-pool",
		size: int64(size),
		sem:  semaphore.NewWeighted(int64(size)),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logger.Get().Named(p.name)
	}
	return p
}

// Size returns the concurrency ceiling.
func (p *Pool) Size() int { return int(p.size) }

// Process runs every task and returns once all started tasks finished.
// A failing task is logged and counted; it never stops the others. Tasks not
// yet started when ctx ends are skipped.
func (p *Pool) Process(ctx context.Context, tasks []Task) Stats {
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		stats Stats
	)
	for i, t := range tasks {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			stats.Skipped += len(tasks) - i
			mu.Unlock()
			break
		}
		metrics.UpdateWorkerActiveCount(int(p.active.Add(1)))
		wg.Add(1)
		go func(t Task) {
			defer wg.Done()
			defer func() {
				metrics.UpdateWorkerActiveCount(int(p.active.Add(-1)))
				p.sem.Release(1)
			}()

			err := p.run(ctx, t)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				stats.Failed++
				return
			}
			stats.Done++
		}(t)
	}
	wg.Wait()
	return stats
}

func (p *Pool) run(ctx context.Context, t Task) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error(ctx, "task panicked", logger.String("task", t.ID), logger.Any("panic", r))
			metrics.RecordErrorByComponent(p.name, "panic")
			err = errPanic
		}
		metrics.RecordWorkerLatency(time.Since(start).Seconds())
		if err != nil {
			metrics.RecordWorkerError()
		}
	}()

	if err := t.Run(ctx); err != nil {
		p.logger.Warn(ctx, "task failed", logger.String("task", t.ID), logger.Error(err))
		return err
	}
	return nil
}
