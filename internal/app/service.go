// Package service drives the submission lifecycle: intake, submission to the
// batch scheduler, completion polling, evaluation, publishing and leaderboard
// rebuilds. Each stage is a pass that is safe to run concurrently with any
// other pass, including another copy of itself.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/okian/foldboard/internal/adapters/artifact"
	"github.com/okian/foldboard/internal/adapters/mq/lock"
	"github.com/okian/foldboard/internal/adapters/mq/queue"
	"github.com/okian/foldboard/internal/adapters/mq/worker"
	"github.com/okian/foldboard/internal/adapters/repository"
	"github.com/okian/foldboard/internal/adapters/scheduler"
	"github.com/okian/foldboard/internal/config"
	"github.com/okian/foldboard/internal/domain/dedupe"
	"github.com/okian/foldboard/internal/domain/descriptor"
	"github.com/okian/foldboard/internal/domain/evaluate"
	"github.com/okian/foldboard/internal/domain/model"
	"github.com/okian/foldboard/internal/domain/structure"
	"github.com/okian/foldboard/pkg/logger"
	"github.com/okian/foldboard/pkg/metrics"
)

var tracer = otel.Tracer("github.com/okian/foldboard/internal/app")

// Pass names.
const (
	PassSubmit   = "submit"
	PassPoll     = "poll"
	PassEvaluate = "evaluate"
	PassPublish  = "publish"
)

// Passes lists every pass in pipeline order.
var Passes = []string{PassSubmit, PassPoll, PassEvaluate, PassPublish}

// Catalog is the read side of the problem catalog.
type Catalog interface {
	descriptor.Catalog
	Problems() []model.Problem
	SessionProblems(key string) []model.Problem
	Sessions() []model.Session
	Session(key string) (model.Session, bool)
	Reference(problemID string) (structure.Structure, error)
}

// Deps are the collaborators of a Service.
type Deps struct {
	Store     repository.Store
	Catalog   Catalog
	Builder   *descriptor.Builder
	Queue     queue.Queue
	Scheduler scheduler.Scheduler
	Evaluator *evaluate.Evaluator
	Sink      artifact.Sink
	Locker    lock.Locker
	Deduper   dedupe.Deduper
	Notifier  Notifier
}

// Report summarizes one pass.
type Report struct {
	Pass    string `json:"pass"`
	Seen    int    `json:"seen"`
	Changed int    `json:"changed"`
	Errors  int    `json:"errors"`
	// Skipped is set when another run of the same pass held the lock.
	Skipped bool `json:"skipped,omitempty"`
}

// Service implements the orchestration passes and the queries the HTTP API needs.
type Service struct {
	mu sync.Mutex

	store     repository.Store
	catalog   Catalog
	builder   *descriptor.Builder
	queue     queue.Queue
	scheduler scheduler.Scheduler
	evaluator *evaluate.Evaluator
	sink      artifact.Sink
	locker    lock.Locker
	deduper   dedupe.Deduper
	notifier  Notifier

	passes  config.PassesConfig
	baseURL string
	weights map[string]float64
	limiter *rate.Limiter
	pool    *worker.Pool
	now     func() time.Time

	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithPasses sets pass intervals, timeouts and limits.
func WithPasses(p config.PassesConfig) Option {
	return func(s *Service) { s.passes = p }
}

// WithBaseURL sets the public prefix of result links.
func WithBaseURL(u string) Option {
	return func(s *Service) {
		if u != "" {
			s.baseURL = u
		}
	}
}

// WithWeights sets per-problem leaderboard weights.
func WithWeights(w map[string]float64) Option {
	return func(s *Service) { s.weights = w }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service. Store, Catalog, Builder, Scheduler, Evaluator and
// Sink are required; the rest default to in-process implementations.
func New(deps Deps, opts ...Option) (*Service, error) {
	if deps.Store == nil || deps.Catalog == nil || deps.Builder == nil ||
		deps.Scheduler == nil || deps.Evaluator == nil || deps.Sink == nil {
		return nil, errors.New("service: missing dependency")
	}
	s := &Service{
		store:     deps.Store,
		catalog:   deps.Catalog,
		builder:   deps.Builder,
		queue:     deps.Queue,
		scheduler: deps.Scheduler,
		evaluator: deps.Evaluator,
		sink:      deps.Sink,
		locker:    deps.Locker,
		deduper:   deps.Deduper,
		notifier:  deps.Notifier,
		passes:    config.New().Passes,
		baseURL:   "http://localhost:9080",
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	if s.queue == nil {
		s.queue = queue.NewInMemoryQueue()
	}
	if s.locker == nil {
		s.locker = lock.NewLocal()
	}
	if s.deduper == nil {
		s.deduper = dedupe.NewMemoryDeduper()
	}
	if s.notifier == nil {
		s.notifier = NewLogNotifier(s.logger.Named("notifier"))
	}

	limit := rate.Inf
	if s.passes.SubmitRate > 0 {
		limit = rate.Limit(s.passes.SubmitRate)
	}
	burst := s.passes.SubmitBurst
	if burst < 1 {
		burst = 1
	}
	s.limiter = rate.NewLimiter(limit, burst)

	size := s.passes.EvalConcurrency
	if size < 1 {
		size = runtime.NumCPU()
	}
	s.pool = worker.NewPool(size, worker.WithName("evaluator"), worker.WithLogger(s.logger.Named("evaluator")))
	return s, nil
}

// Start runs every pass on its own ticker until Stop or ctx ends.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.started = true

	intervals := map[string]time.Duration{
		PassSubmit:   s.passes.SubmitInterval,
		PassPoll:     s.passes.PollInterval,
		PassEvaluate: s.passes.EvaluateInterval,
		PassPublish:  s.passes.PublishInterval,
	}
	for _, name := range Passes {
		every := intervals[name]
		if every <= 0 {
			s.logger.Warn(ctx, "pass disabled", logger.String("pass", name))
			continue
		}
		s.wg.Add(1)
		go s.loop(ctx, name, every)
	}
	if s.passes.MetricsInterval > 0 {
		s.wg.Add(1)
		go s.metricsLoop(ctx, s.passes.MetricsInterval)
	}

	s.logger.Info(ctx, "orchestrator started",
		logger.String("scheduler", s.scheduler.Name()),
		logger.String("aligner", s.evaluator.AlignerName()),
		logger.String("artifacts", s.sink.Identifier()),
		logger.Int("eval_concurrency", s.pool.Size()),
	)
	return nil
}

// Stop cancels running passes and waits for them to return.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.started = false
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info(context.Background(), "orchestrator stopped")
}

// Started reports whether the pass loops are running.
func (s *Service) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

func (s *Service) loop(ctx context.Context, name string, every time.Duration) {
	defer s.wg.Done()
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		if _, err := s.RunPass(ctx, name); err != nil && ctx.Err() == nil {
			s.logger.Error(ctx, "pass failed", logger.String("pass", name), logger.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func (s *Service) metricsLoop(ctx context.Context, every time.Duration) {
	defer s.wg.Done()
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.updateMetrics(ctx)
		}
	}
}

func (s *Service) updateMetrics(ctx context.Context) {
	if _, err := s.Stats(ctx); err != nil {
		s.logger.Debug(ctx, "metrics refresh failed", logger.Error(err))
	}
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
}

// RunPass runs one pass by name. Overlapping runs of the same pass, in this
// process or another one sharing the locker, are skipped.
func (s *Service) RunPass(ctx context.Context, name string) (Report, error) {
	var fn func(context.Context) (Report, error)
	switch name {
	case PassSubmit:
		fn = s.SubmitPass
	case PassPoll:
		fn = s.PollPass
	case PassEvaluate:
		fn = s.EvaluatePass
	case PassPublish:
		fn = s.PublishPass
	default:
		return Report{}, fmt.Errorf("%w: %s", ErrUnknownPass, name)
	}

	ttl := s.passes.DistributedLockTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	release, ok, err := s.locker.TryAcquire(ctx, "pass:"+name, ttl)
	if err != nil {
		return Report{Pass: name}, fmt.Errorf("lock %s: %w", name, err)
	}
	if !ok {
		s.logger.Debug(ctx, "pass already running", logger.String("pass", name))
		return Report{Pass: name, Skipped: true}, nil
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn(ctx, "release pass lock", logger.String("pass", name), logger.Error(err))
		}
	}()

	ctx, span := tracer.Start(ctx, "pass."+name, trace.WithAttributes(attribute.String("pass", name)))
	defer span.End()

	start := time.Now()
	rep, err := fn(ctx)
	rep.Pass = name
	outcome := "ok"
	if err != nil {
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, "pass failed")
	} else if rep.Errors > 0 {
		outcome = "partial"
	}
	metrics.RecordPass(name, outcome, time.Since(start).Seconds())
	span.SetAttributes(
		attribute.Int("seen", rep.Seen),
		attribute.Int("changed", rep.Changed),
		attribute.Int("errors", rep.Errors),
	)
	if rep.Changed > 0 || rep.Errors > 0 {
		s.logger.Info(ctx, "pass finished",
			logger.String("pass", name),
			logger.Int("seen", rep.Seen),
			logger.Int("changed", rep.Changed),
			logger.Int("errors", rep.Errors),
			logger.Duration("took", time.Since(start)),
		)
	}
	return rep, err
}

// transition moves job to state to. A lost compare-and-set means another pass
// already handled the job and is reported as ok=false without error.
func (s *Service) transition(ctx context.Context, job model.Job, to model.JobState, obs model.Observation) (model.Job, bool, error) {
	next, err := s.store.Transition(ctx, job.ID, job.State, to, obs)
	if errors.Is(err, repository.ErrStaleState) || errors.Is(err, repository.ErrNotFound) {
		s.logger.Debug(ctx, "job already moved",
			logger.String("job_id", job.ID),
			logger.String("from", string(job.State)),
			logger.String("to", string(to)),
		)
		return job, false, nil
	}
	if err != nil {
		return job, false, err
	}
	metrics.RecordJobTransition(string(job.State), string(to))
	return next, true, nil
}

// Stats returns job counts by state and refreshes the matching gauges.
func (s *Service) Stats(ctx context.Context) (map[model.JobState]int, error) {
	counts, err := s.store.CountByState(ctx)
	if err != nil {
		return nil, err
	}
	gauge := make(map[string]int, len(model.AllJobStates))
	for _, st := range model.AllJobStates {
		gauge[string(st)] = counts[st]
	}
	metrics.UpdateJobsByState(gauge)
	if n, err := s.queue.Len(ctx); err == nil {
		metrics.UpdateQueueSize(n)
	}
	return counts, nil
}

// QueueLen returns the number of job ids waiting for the submitter.
func (s *Service) QueueLen(ctx context.Context) (int, error) {
	return s.queue.Len(ctx)
}

// Sessions lists the catalog sessions.
func (s *Service) Sessions() []model.Session { return s.catalog.Sessions() }

// Problems lists the catalog problems.
func (s *Service) Problems() []model.Problem { return s.catalog.Problems() }
