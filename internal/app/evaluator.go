package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/okian/foldboard/internal/adapters/mq/worker"
	"github.com/okian/foldboard/internal/adapters/repository"
	"github.com/okian/foldboard/internal/domain/evaluate"
	"github.com/okian/foldboard/internal/domain/model"
	"github.com/okian/foldboard/pkg/logger"
	"github.com/okian/foldboard/pkg/metrics"
)

// EvaluatePass scores every succeeded job against its problem's reference,
// up to the configured number in parallel.
func (s *Service) EvaluatePass(ctx context.Context) (Report, error) {
	jobs, err := s.store.JobsByState(ctx, model.JobSucceeded)
	if err != nil {
		return Report{}, err
	}
	log := s.logger.Named("evaluator")

	var changed atomic.Int64
	tasks := make([]worker.Task, len(jobs))
	for i, job := range jobs {
		tasks[i] = worker.Task{ID: job.ID, Run: func(ctx context.Context) error {
			moved, err := s.evaluateJob(ctx, log, job)
			if moved {
				changed.Add(1)
			}
			return err
		}}
	}
	stats := s.pool.Process(ctx, tasks)
	return Report{Seen: len(jobs), Changed: int(changed.Load()), Errors: stats.Failed}, ctx.Err()
}

// evaluateJob records a new result and moves the job to evaluated. Output the
// evaluator cannot score fails the job with evaluation_error; anything else is
// transient and retried next pass.
func (s *Service) evaluateJob(ctx context.Context, log logger.Logger, job model.Job) (bool, error) {
	start := time.Now()
	res, err := s.score(ctx, job)
	if errors.Is(err, evaluate.ErrBadOutput) {
		metrics.RecordEvaluationFailure()
		_, ok, terr := s.transition(ctx, job, model.JobFailed, model.Observation{
			FailureReason: model.ReasonEvaluationError,
			FailureDetail: err.Error(),
		})
		if ok {
			log.Warn(ctx, "evaluation failed", logger.String("job_id", job.ID), logger.Error(err))
		}
		return ok, terr
	}
	if err != nil {
		return false, err
	}
	metrics.RecordEvaluation(time.Since(start).Seconds())

	// another evaluator, possibly in another process, may have committed first
	_, stored, err := s.store.CommitEvaluation(ctx, res)
	if errors.Is(err, repository.ErrStaleState) || errors.Is(err, repository.ErrNotFound) {
		log.Debug(ctx, "job already evaluated", logger.String("job_id", job.ID))
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store evaluation: %w", err)
	}
	metrics.RecordJobTransition(string(model.JobSucceeded), string(model.JobEvaluated))
	log.Debug(ctx, "job evaluated", logger.String("job_id", job.ID), logger.Int("revision", stored.Revision))
	return true, nil
}

// score runs the evaluator on a job's artifact.
func (s *Service) score(ctx context.Context, job model.Job) (model.EvaluationResult, error) {
	if job.ArtifactPath == "" {
		return model.EvaluationResult{}, fmt.Errorf("%w: no artifact recorded", evaluate.ErrBadOutput)
	}
	p, _, ok := s.catalog.Problem(job.ProblemID)
	if !ok {
		return model.EvaluationResult{}, fmt.Errorf("problem %s not in catalog", job.ProblemID)
	}
	ref, err := s.catalog.Reference(p.ID)
	if err != nil {
		return model.EvaluationResult{}, fmt.Errorf("reference %s: %w", p.ID, err)
	}
	return s.evaluator.Evaluate(ctx, p, job.ID, job.ArtifactPath, ref)
}
