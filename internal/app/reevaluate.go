package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/foldboard/internal/adapters/repository"
	"github.com/okian/foldboard/internal/domain/model"
	"github.com/okian/foldboard/pkg/logger"
)

// ReevaluateRequest selects a submission by id or result token, optionally
// narrowed to one problem.
type ReevaluateRequest struct {
	SubmissionID string `json:"submission_id,omitempty"`
	Token        string `json:"token,omitempty"`
	ProblemID    string `json:"problem_id,omitempty"`
}

// ReevaluateReport lists the jobs that received a new result revision.
type ReevaluateReport struct {
	SubmissionID string   `json:"submission_id"`
	Jobs         []string `json:"jobs"`
	Failed       []string `json:"failed,omitempty"`
	Republished  bool     `json:"republished"`
}

// Reevaluate scores a submission's evaluated jobs again. Each new result
// supersedes the previous one; the artifact is republished under the same
// token and affected leaderboards are rebuilt.
func (s *Service) Reevaluate(ctx context.Context, req ReevaluateRequest) (ReevaluateReport, error) {
	sub, err := s.resolve(ctx, req)
	if err != nil {
		return ReevaluateReport{}, err
	}
	jobs, err := s.store.JobsBySubmission(ctx, sub.ID)
	if err != nil {
		return ReevaluateReport{}, err
	}
	log := s.logger.Named("reevaluate")

	rep := ReevaluateReport{SubmissionID: sub.ID}
	sessions := map[string]bool{}
	for _, j := range jobs {
		if req.ProblemID != "" && j.ProblemID != req.ProblemID {
			continue
		}
		if j.State != model.JobEvaluated && j.State != model.JobPublished {
			continue
		}
		res, err := s.score(ctx, j)
		if err != nil {
			rep.Failed = append(rep.Failed, j.ID)
			log.Warn(ctx, "re-evaluation failed", logger.String("job_id", j.ID), logger.Error(err))
			continue
		}
		stored, err := s.store.AddEvaluation(ctx, res)
		if err != nil {
			return rep, fmt.Errorf("store evaluation: %w", err)
		}
		rep.Jobs = append(rep.Jobs, j.ID)
		if _, session, ok := s.catalog.Problem(j.ProblemID); ok {
			sessions[session.Key] = true
		}
		log.Info(ctx, "job re-evaluated", logger.String("job_id", j.ID), logger.Int("revision", stored.Revision))
	}

	if len(rep.Jobs) > 0 && sub.ResultToken != "" {
		_, ok, err := s.publish(ctx, log, sub)
		if err != nil {
			return rep, err
		}
		rep.Republished = ok
	}
	for k := range sessions {
		if _, err := s.Aggregate(ctx, k); err != nil {
			return rep, err
		}
	}
	return rep, nil
}

func (s *Service) resolve(ctx context.Context, req ReevaluateRequest) (model.Submission, error) {
	var (
		sub model.Submission
		err error
	)
	switch {
	case req.SubmissionID != "":
		sub, err = s.store.Submission(ctx, req.SubmissionID)
		if errors.Is(err, repository.ErrNotFound) {
			return sub, fmt.Errorf("%w: %s", ErrSubmissionNotFound, req.SubmissionID)
		}
	case req.Token != "":
		sub, err = s.store.SubmissionByToken(ctx, req.Token)
		if errors.Is(err, repository.ErrNotFound) {
			return sub, ErrTokenNotFound
		}
	default:
		return sub, invalid("submission_id", "submission id or token required")
	}
	return sub, err
}
