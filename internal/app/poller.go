package service

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/foldboard/internal/adapters/repository"
	"github.com/okian/foldboard/internal/adapters/scheduler"
	"github.com/okian/foldboard/internal/domain/evaluate"
	"github.com/okian/foldboard/internal/domain/model"
	"github.com/okian/foldboard/internal/domain/structure"
	"github.com/okian/foldboard/pkg/logger"
	"github.com/okian/foldboard/pkg/metrics"
)

// PollPass observes every queued or running job once and moves it forward.
// One job's failure never stops the others.
func (s *Service) PollPass(ctx context.Context) (Report, error) {
	jobs, err := s.store.JobsByState(ctx, model.JobQueued, model.JobRunning)
	if err != nil {
		return Report{}, err
	}
	log := s.logger.Named("poller")

	var changed, failed atomic.Int64
	limit := s.passes.PollConcurrency
	if limit < 1 {
		limit = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, job := range jobs {
		g.Go(func() error {
			moved, err := s.pollJob(gctx, log, job)
			if err != nil {
				failed.Add(1)
				log.Warn(gctx, "poll failed", logger.String("job_id", job.ID), logger.Error(err))
			}
			if moved {
				changed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	return Report{Seen: len(jobs), Changed: int(changed.Load()), Errors: int(failed.Load())}, ctx.Err()
}

// pollJob applies one observation. The returned bool reports a state change.
func (s *Service) pollJob(ctx context.Context, log logger.Logger, job model.Job) (bool, error) {
	now := s.now().UTC()

	if s.passes.MaxJobAge > 0 && job.FirstQueuedAt != nil && now.Sub(*job.FirstQueuedAt) > s.passes.MaxJobAge {
		return s.timeout(ctx, log, job)
	}

	status, err := s.status(ctx, job)
	switch {
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		// the scheduler took the query but never answered; treat the job as unknown
		log.Debug(ctx, "status query timed out", logger.String("job_id", job.ID), logger.Error(err))
		status = scheduler.StatusUnknown
	case err != nil:
		// unreachable scheduler: try again next pass
		return false, err
	}

	switch status {
	case scheduler.StatusQueued:
		return false, s.clearUnknown(ctx, job)

	case scheduler.StatusRunning:
		if job.State == model.JobQueued {
			_, ok, err := s.transition(ctx, job, model.JobRunning, model.Observation{ClearUnknown: true})
			return ok, err
		}
		return false, s.clearUnknown(ctx, job)

	case scheduler.StatusSucceeded:
		return s.completed(ctx, log, job, now)

	case scheduler.StatusFailed:
		return s.attemptFailed(ctx, log, job, model.ReasonPredictionFailed, "scheduler reported failure")

	default:
		if job.UnknownSince == nil {
			_, err := s.store.Annotate(ctx, job.ID, job.State, model.Observation{UnknownSince: &now})
			return false, ignoreStale(err)
		}
		if now.Sub(*job.UnknownSince) > s.passes.UnknownGrace {
			return s.attemptFailed(ctx, log, job, model.ReasonPredictionFailed, "job vanished from scheduler")
		}
		return false, nil
	}
}

func (s *Service) status(ctx context.Context, job model.Job) (scheduler.Status, error) {
	if job.ExternalID == "" {
		return scheduler.StatusUnknown, nil
	}
	timeout := s.passes.StatusTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	st, err := s.scheduler.Status(sctx, job.ExternalID)
	metrics.RecordSchedulerStatusLatency(time.Since(start).Seconds())
	if err != nil {
		metrics.RecordSchedulerCall("status", "error")
		return scheduler.StatusUnknown, err
	}
	metrics.RecordSchedulerCall("status", string(st))
	return st, nil
}

// completed promotes a job whose scheduler run succeeded, but only once its
// artifact is present and parses. Until then the job stays in running with the
// scheduler completion time recorded; past the artifact grace it fails.
func (s *Service) completed(ctx context.Context, log logger.Logger, job model.Job, now time.Time) (bool, error) {
	if path, ok := readyArtifact(job.OutputDir); ok {
		_, moved, err := s.transition(ctx, job, model.JobSucceeded, model.Observation{ArtifactPath: path, ClearUnknown: true})
		return moved, err
	}

	if job.SchedulerDoneAt == nil {
		obs := model.Observation{SchedulerDoneAt: &now, ClearUnknown: true}
		if job.State == model.JobQueued {
			_, ok, err := s.transition(ctx, job, model.JobRunning, obs)
			return ok, err
		}
		_, err := s.store.Annotate(ctx, job.ID, job.State, obs)
		log.Debug(ctx, "waiting for artifact", logger.String("job_id", job.ID))
		return false, ignoreStale(err)
	}
	if now.Sub(*job.SchedulerDoneAt) > s.passes.ArtifactGrace {
		return s.attemptFailed(ctx, log, job, model.ReasonPredictionFailed, "no output structure after completion")
	}
	return false, nil
}

// readyArtifact finds the predicted structure and checks it has CA atoms.
func readyArtifact(outputDir string) (string, bool) {
	path, ok := evaluate.FindArtifact(outputDir)
	if !ok {
		return "", false
	}
	if _, err := structure.ParseFile(path); err != nil {
		return "", false
	}
	return path, true
}

// attemptFailed retries the job with a fresh attempt, or fails it for good
// once the attempt cap is reached.
func (s *Service) attemptFailed(ctx context.Context, log logger.Logger, job model.Job, reason model.FailureReason, detail string) (bool, error) {
	if job.Attempts < s.passes.MaxAttempts {
		next, err := s.builder.Rebuild(job)
		if err != nil {
			return false, err
		}
		if err := s.builder.Materialize(next); err != nil {
			return false, err
		}
		stored, err := s.store.Retry(ctx, next.Job)
		if errors.Is(err, repository.ErrStaleState) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		metrics.RecordJobRetry()
		metrics.RecordJobTransition(string(job.State), string(model.JobPending))
		if err := s.queue.Enqueue(ctx, stored.ID); err != nil {
			log.Debug(ctx, "retry not enqueued, left for the pending sweep", logger.String("job_id", stored.ID), logger.Error(err))
		}
		log.Info(ctx, "job retried",
			logger.String("job_id", job.ID),
			logger.String("reason", string(reason)),
			logger.String("detail", detail),
			logger.Int("attempt", stored.Attempts),
		)
		return true, nil
	}

	_, ok, err := s.transition(ctx, job, model.JobFailed, model.Observation{
		FailureReason: reason,
		FailureDetail: detail,
	})
	if ok {
		log.Warn(ctx, "job failed",
			logger.String("job_id", job.ID),
			logger.String("reason", string(reason)),
			logger.String("detail", detail),
			logger.Int("attempts", job.Attempts),
		)
	}
	return ok, err
}

// timeout fails a job that outlived the maximum age and cancels it best effort.
func (s *Service) timeout(ctx context.Context, log logger.Logger, job model.Job) (bool, error) {
	_, ok, err := s.transition(ctx, job, model.JobFailed, model.Observation{
		FailureReason: model.ReasonTimeout,
		FailureDetail: "exceeded maximum job age",
	})
	if err != nil || !ok {
		return ok, err
	}
	metrics.RecordJobTimeout()
	log.Warn(ctx, "job timed out", logger.String("job_id", job.ID), logger.Int("attempts", job.Attempts))

	if job.ExternalID != "" {
		if err := s.scheduler.Cancel(ctx, job.ExternalID); err != nil {
			metrics.RecordSchedulerCall("cancel", "error")
			log.Warn(ctx, "cancel failed", logger.String("job_id", job.ID), logger.Error(err))
		} else {
			metrics.RecordSchedulerCall("cancel", "ok")
		}
	}
	return true, nil
}

func (s *Service) clearUnknown(ctx context.Context, job model.Job) error {
	if job.UnknownSince == nil {
		return nil
	}
	_, err := s.store.Annotate(ctx, job.ID, job.State, model.Observation{ClearUnknown: true})
	return ignoreStale(err)
}

func ignoreStale(err error) error {
	if errors.Is(err, repository.ErrStaleState) {
		return nil
	}
	return err
}
