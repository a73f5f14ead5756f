package service

import (
	"context"
	"errors"

	"github.com/okian/foldboard/internal/adapters/scheduler"
	"github.com/okian/foldboard/internal/domain/descriptor"
	"github.com/okian/foldboard/internal/domain/model"
	"github.com/okian/foldboard/pkg/logger"
	"github.com/okian/foldboard/pkg/metrics"
)

// SubmitPass hands pending jobs to the scheduler, queue order first and then
// any pending job the queue lost. Submissions are throttled; a full scheduler
// queue ends the pass and leaves the remaining jobs pending.
func (s *Service) SubmitPass(ctx context.Context) (Report, error) {
	var rep Report
	log := s.logger.Named("submitter")

	ids, err := s.submitOrder(ctx)
	if err != nil {
		return rep, err
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		job, err := s.store.Job(ctx, id)
		if err != nil {
			log.Debug(ctx, "queued job not loadable", logger.String("job_id", id), logger.Error(err))
			continue
		}
		// already submitted, or moved on since it was queued
		if job.State != model.JobPending || job.ExternalID != "" {
			continue
		}
		rep.Seen++

		if err := s.limiter.Wait(ctx); err != nil {
			return rep, err
		}
		changed, err := s.submitJob(ctx, log, job)
		if errors.Is(err, scheduler.ErrQueueFull) {
			log.Info(ctx, "scheduler queue full, leaving jobs pending", logger.Int("remaining", len(ids)-rep.Seen+1))
			return rep, nil
		}
		if err != nil {
			rep.Errors++
			log.Warn(ctx, "submit failed", logger.String("job_id", job.ID), logger.Error(err))
			continue
		}
		if changed {
			rep.Changed++
		}
	}
	return rep, nil
}

// submitOrder drains the queue and appends pending jobs it did not mention.
func (s *Service) submitOrder(ctx context.Context) ([]string, error) {
	var ids []string
	seen := map[string]bool{}
	for {
		id, ok, err := s.queue.TryDequeue(ctx)
		if err != nil {
			s.logger.Warn(ctx, "dequeue failed", logger.Error(err))
			break
		}
		if !ok {
			break
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if n, err := s.queue.Len(ctx); err == nil {
		metrics.UpdateQueueSize(n)
	}

	pending, err := s.store.JobsByState(ctx, model.JobPending)
	if err != nil {
		return nil, err
	}
	for _, j := range pending {
		if !seen[j.ID] {
			seen[j.ID] = true
			ids = append(ids, j.ID)
		}
	}
	return ids, nil
}

func (s *Service) submitJob(ctx context.Context, log logger.Logger, job model.Job) (bool, error) {
	extID, err := s.scheduler.Submit(ctx, schedulerRequest(job))
	switch {
	case errors.Is(err, scheduler.ErrQueueFull):
		metrics.RecordSchedulerCall("submit", "queue_full")
		return false, err
	case err != nil:
		metrics.RecordSchedulerCall("submit", "error")
		return false, err
	}
	metrics.RecordSchedulerCall("submit", "ok")

	now := s.now().UTC()
	_, ok, err := s.transition(ctx, job, model.JobQueued, model.Observation{
		ExternalID:    extID,
		FirstQueuedAt: &now,
	})
	if err != nil {
		return false, err
	}
	if !ok {
		// someone else submitted the same attempt first; drop our copy
		if cerr := s.scheduler.Cancel(context.WithoutCancel(ctx), extID); cerr != nil {
			log.Warn(ctx, "cancel duplicate submission", logger.String("job_id", job.ID), logger.Error(cerr))
		}
		return false, nil
	}
	log.Debug(ctx, "job submitted",
		logger.String("job_id", job.ID),
		logger.String("external_id", extID),
		logger.Int("attempt", job.Attempts),
	)
	return true, nil
}

func schedulerRequest(job model.Job) scheduler.Request {
	return scheduler.Request{
		JobID:          job.ID,
		Participant:    job.ParticipantID,
		DescriptorPath: job.DescriptorPath,
		OutputDir:      job.OutputDir,
		LogsDir:        descriptor.LogsDir(job),
	}
}
