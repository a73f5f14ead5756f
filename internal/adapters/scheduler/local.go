package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/okian/foldboard/internal/adapters/command"
	"github.com/okian/foldboard/pkg/logger"
)

// Local runs the predictor on this host with a fixed number of slots.
// Job records live in memory; after a restart earlier ids report StatusUnknown.
type Local struct {
	exec       command.Executor
	predictor  string
	slots      *semaphore.Weighted
	queueLimit int
	logger     logger.Logger

	mu   sync.Mutex
	jobs map[string]*localJob

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type localJob struct {
	status Status
	cancel context.CancelFunc
}

var _ Scheduler = (*Local)(nil)

// LocalOption configures a Local scheduler.
type LocalOption func(*Local)

// WithQueueLimit bounds jobs that are queued or running; beyond it Submit
// returns ErrQueueFull.
func WithQueueLimit(n int) LocalOption {
	return func(l *Local) {
		if n > 0 {
			l.queueLimit = n
		}
	}
}

// WithLocalLogger sets the logger.
func WithLocalLogger(lg logger.Logger) LocalOption {
	return func(l *Local) {
		if lg != nil {
			l.logger = lg
		}
	}
}

// NewLocal creates a Local scheduler running predictor through exec.
func NewLocal(exec command.Executor, predictor string, slots int, opts ...LocalOption) *Local {
	if slots < 1 {
		slots = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	l := &Local{
		exec:       exec,
		predictor:  predictor,
		slots:      semaphore.NewWeighted(int64(slots)),
		queueLimit: slots * 16,
		jobs:       make(map[string]*localJob),
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = logger.Get().Named("local-scheduler")
	}
	return l
}

// Name implements Scheduler.
func (l *Local) Name() string { return "local" }

// Submit implements Scheduler.
func (l *Local) Submit(_ context.Context, req Request) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx.Err() != nil {
		return "", ErrSubmit
	}
	active := 0
	for _, j := range l.jobs {
		if j.status == StatusQueued || j.status == StatusRunning {
			active++
		}
	}
	if active >= l.queueLimit {
		return "", ErrQueueFull
	}

	id := uuid.NewString()
	ctx, cancel := context.WithCancel(l.ctx)
	l.jobs[id] = &localJob{status: StatusQueued, cancel: cancel}
	l.wg.Add(1)
	go l.run(ctx, id, req)
	return id, nil
}

func (l *Local) run(ctx context.Context, id string, req Request) {
	defer l.wg.Done()
	if err := l.slots.Acquire(ctx, 1); err != nil {
		l.finish(id, StatusFailed)
		return
	}
	defer l.slots.Release(1)
	if !l.set(id, StatusRunning) {
		return
	}

	cmd := command.New(l.predictor, "--json_path="+req.DescriptorPath, "--output_dir="+req.OutputDir)
	res, err := l.exec.Execute(ctx, cmd)
	if err != nil {
		l.logger.Warn(ctx, "predictor failed to start", logger.String("job_id", req.JobID), logger.Error(err))
		l.finish(id, StatusFailed)
		return
	}
	if req.LogsDir != "" {
		path := filepath.Join(req.LogsDir, req.JobID+".log")
		if err := os.WriteFile(path, append(res.Stdout, res.Stderr...), 0o644); err != nil { //nolint:gosec // job logs are not secret
			l.logger.Debug(ctx, "write job log", logger.String("job_id", req.JobID), logger.Error(err))
		}
	}
	if res.Success() && ctx.Err() == nil {
		l.finish(id, StatusSucceeded)
		return
	}
	l.finish(id, StatusFailed)
}

// set moves a queued job to status unless it was already finished.
func (l *Local) set(id string, status Status) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	j, ok := l.jobs[id]
	if !ok || j.status == StatusFailed || j.status == StatusSucceeded {
		return false
	}
	j.status = status
	return true
}

func (l *Local) finish(id string, status Status) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if j, ok := l.jobs[id]; ok {
		if j.status != StatusFailed {
			j.status = status
		}
		j.cancel()
	}
}

// Status implements Scheduler.
func (l *Local) Status(_ context.Context, externalID string) (Status, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	j, ok := l.jobs[externalID]
	if !ok {
		return StatusUnknown, nil
	}
	return j.status, nil
}

// Cancel implements Scheduler.
func (l *Local) Cancel(_ context.Context, externalID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	j, ok := l.jobs[externalID]
	if !ok {
		return ErrUnknownJob
	}
	if j.status == StatusQueued || j.status == StatusRunning {
		j.status = StatusFailed
	}
	j.cancel()
	return nil
}

// Close cancels running jobs and waits for them to exit.
func (l *Local) Close() {
	l.cancel()
	l.wg.Wait()
}
