// Package bootstrap assembles the orchestrator from configuration. The server
// and the admin CLI share it so a one-shot pass sees the same stack.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/okian/foldboard/internal/adapters/aligner"
	"github.com/okian/foldboard/internal/adapters/artifact"
	"github.com/okian/foldboard/internal/adapters/command"
	"github.com/okian/foldboard/internal/adapters/mq/lock"
	"github.com/okian/foldboard/internal/adapters/mq/queue"
	"github.com/okian/foldboard/internal/adapters/repository"
	"github.com/okian/foldboard/internal/adapters/scheduler"
	service "github.com/okian/foldboard/internal/app"
	"github.com/okian/foldboard/internal/catalog"
	"github.com/okian/foldboard/internal/config"
	"github.com/okian/foldboard/internal/domain/dedupe"
	"github.com/okian/foldboard/internal/domain/descriptor"
	"github.com/okian/foldboard/internal/domain/evaluate"
	"github.com/okian/foldboard/pkg/logger"
	"github.com/okian/foldboard/pkg/metrics"
)

const lockPrefix = "foldboard:lock:"

// Runtime is a wired orchestrator and the resources it holds.
type Runtime struct {
	Config  *config.Config
	Service *service.Service
	Catalog *catalog.Catalog
	Store   repository.Store

	closers []func() error
}

// Close releases connections in reverse order of creation.
func (r *Runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

func (r *Runtime) onClose(fn func() error) { r.closers = append(r.closers, fn) }

// Build wires the service described by cfg. On error every resource opened so
// far is released.
func Build(ctx context.Context, cfg *config.Config, log logger.Logger) (_ *Runtime, err error) {
	rt := &Runtime{Config: cfg}
	defer func() {
		if err != nil {
			_ = rt.Close()
		}
	}()

	rt.Store, err = openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	rt.onClose(rt.Store.Close)

	rt.Catalog, err = OpenCatalog(cfg, rt.Store)
	if err != nil {
		return nil, err
	}

	var (
		q      queue.Queue
		locker lock.Locker = lock.NewLocal()
	)
	switch cfg.Queue.Driver {
	case "redis":
		var rdb *redis.Client
		rdb, err = queue.NewRedisClient(ctx, queue.RedisConfig{Addr: cfg.Queue.RedisAddr, DB: cfg.Queue.RedisDB})
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		rt.onClose(rdb.Close)
		q = queue.NewRedisQueue(rdb, cfg.Queue.RedisKey, cfg.Queue.Capacity)
		locker = lock.NewRedis(rdb, lockPrefix)
	default:
		q = queue.NewInMemoryQueue(queue.WithCapacity(cfg.Queue.Capacity))
	}
	rt.onClose(q.Close)
	metrics.UpdateQueueCapacity(cfg.Queue.Capacity)

	exec := command.NewShellExecutor(log.Named("exec"))
	sched := newScheduler(cfg.Scheduler, exec, log)
	if l, ok := sched.(*scheduler.Local); ok {
		rt.onClose(func() error { l.Close(); return nil })
	}

	var al evaluate.Aligner = evaluate.NewBuiltinAligner()
	if cfg.Eval.Aligner == "tmalign" {
		al = aligner.NewTMalign(cfg.Eval.AlignerBinary, exec)
	}

	sink, err := openSink(ctx, cfg.Artifacts)
	if err != nil {
		return nil, err
	}

	builder := descriptor.NewBuilder(rt.Catalog, cfg.DataDir,
		descriptor.WithModelSeeds(cfg.Submission.ModelSeeds),
		descriptor.WithMaxSequences(cfg.Submission.MaxSequencesPerProblem),
	)

	rt.Service, err = service.New(service.Deps{
		Store:     rt.Store,
		Catalog:   rt.Catalog,
		Builder:   builder,
		Queue:     q,
		Scheduler: sched,
		Evaluator: evaluate.New(al),
		Sink:      sink,
		Locker:    locker,
		Deduper:   dedupe.NewMemoryDeduper(dedupe.WithMaxSize(cfg.Submission.DedupeSize)),
		Notifier:  service.NewLogNotifier(log.Named("notifier")),
	},
		service.WithPasses(cfg.Passes),
		service.WithBaseURL(cfg.Artifacts.BaseURL),
		service.WithWeights(cfg.Leaderboard.Weights),
		service.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}
	return rt, nil
}

// OpenCatalog opens the catalog document; edits consult store for existing submissions.
func OpenCatalog(cfg *config.Config, store repository.Store) (*catalog.Catalog, error) {
	var opts []catalog.Option
	if store != nil {
		opts = append(opts, catalog.WithUsage(store.ProblemHasSubmissions))
	}
	c, err := catalog.Open(cfg.CatalogFile, opts...)
	if err != nil {
		return nil, fmt.Errorf("open catalog %s: %w", cfg.CatalogFile, err)
	}
	return c, nil
}

// OpenStore opens the configured store on its own, for tools that only edit
// the catalog. The returned func closes it.
func OpenStore(ctx context.Context, cfg *config.Config) (repository.Store, func(), error) {
	s, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, nil, err
	}
	return s, func() { _ = s.Close() }, nil
}

func openStore(ctx context.Context, cfg config.StoreConfig) (repository.Store, error) {
	if cfg.Driver != "postgres" {
		return repository.NewMemoryStore(), nil
	}
	s, err := repository.NewPostgresStore(ctx, repository.PostgresConfig{
		DSN:         cfg.PostgresDSN,
		MaxConns:    cfg.MaxConns,
		MaxLifetime: cfg.MaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres store: %w", err)
	}
	return s, nil
}

func newScheduler(cfg config.SchedulerConfig, exec command.Executor, log logger.Logger) scheduler.Scheduler {
	if cfg.Driver == "local" {
		return scheduler.NewLocal(exec, cfg.Predictor, cfg.LocalSlots, scheduler.WithLocalLogger(log.Named("local-scheduler")))
	}
	return scheduler.NewSlurm(scheduler.SlurmConfig{
		Partition: cfg.Partition,
		Nice:      cfg.Nice,
		CPUs:      cfg.CPUs,
		GPUs:      cfg.GPUs,
		Exclude:   cfg.Exclude,
		Sbatch:    cfg.Sbatch,
		Sacct:     cfg.Sacct,
		Scancel:   cfg.Scancel,
		Predictor: cfg.Predictor,
	}, exec)
}

func openSink(ctx context.Context, cfg config.ArtifactsConfig) (artifact.Sink, error) {
	var (
		sink artifact.Sink
		err  error
	)
	switch cfg.Driver {
	case "minio":
		m, merr := artifact.NewMinioSink(cfg.Minio.Endpoint, cfg.Minio.AccessKey, cfg.Minio.SecretKey, cfg.Minio.UseSSL, cfg.Minio.Bucket)
		if merr != nil {
			return nil, fmt.Errorf("minio sink: %w", merr)
		}
		if err := m.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("minio bucket %s: %w", cfg.Minio.Bucket, err)
		}
		sink = m
	default:
		sink, err = artifact.NewFSSink(cfg.Dir)
		if err != nil {
			return nil, fmt.Errorf("fs sink: %w", err)
		}
	}
	return artifact.NewRetrySink(sink), nil
}
