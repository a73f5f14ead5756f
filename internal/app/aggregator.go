package service

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/foldboard/internal/adapters/artifact"
	"github.com/okian/foldboard/internal/domain/leaderboard"
	"github.com/okian/foldboard/internal/domain/model"
	"github.com/okian/foldboard/pkg/logger"
	"github.com/okian/foldboard/pkg/metrics"
)

// Leaderboard builds the current leaderboard of a session from the store.
// Only published jobs are read, so a score never appears before its
// submission has passed the publish barrier and holds a token.
func (s *Service) Leaderboard(ctx context.Context, sessionKey string) (model.Leaderboard, error) {
	session, ok := s.catalog.Session(sessionKey)
	if !ok {
		return model.Leaderboard{}, fmt.Errorf("%w: %s", ErrUnknownSession, sessionKey)
	}
	problems := s.catalog.SessionProblems(sessionKey)
	inSession := make(map[string]bool, len(problems))
	for _, p := range problems {
		inSession[p.ID] = true
	}

	jobs, err := s.store.JobsByState(ctx, model.JobPublished)
	if err != nil {
		return model.Leaderboard{}, err
	}
	var ids []string
	var relevant []model.Job
	for _, j := range jobs {
		if inSession[j.ProblemID] {
			relevant = append(relevant, j)
			ids = append(ids, j.ID)
		}
	}
	results, err := s.store.LatestEvaluations(ctx, ids)
	if err != nil {
		return model.Leaderboard{}, err
	}

	submittedAt := map[string]time.Time{}
	scored := make([]leaderboard.Scored, 0, len(relevant))
	for _, j := range relevant {
		r, ok := results[j.ID]
		if !ok {
			continue
		}
		at, ok := submittedAt[j.SubmissionID]
		if !ok {
			sub, err := s.store.Submission(ctx, j.SubmissionID)
			if err != nil {
				return model.Leaderboard{}, err
			}
			at = sub.SubmittedAt
			submittedAt[j.SubmissionID] = at
		}
		scored = append(scored, leaderboard.Scored{Job: j, SubmittedAt: at, Result: r})
	}
	return leaderboard.New(s.weights).Build(session, problems, scored), nil
}

// Aggregate rebuilds a session leaderboard and writes it as an artifact.
func (s *Service) Aggregate(ctx context.Context, sessionKey string) (model.Leaderboard, error) {
	start := time.Now()
	lb, err := s.Leaderboard(ctx, sessionKey)
	if err != nil {
		return lb, err
	}
	raw, err := leaderboard.Encode(lb)
	if err != nil {
		return lb, err
	}
	if err := artifact.PutBytes(ctx, s.sink, artifact.LeaderboardKey(sessionKey), raw); err != nil {
		return lb, fmt.Errorf("write leaderboard %s: %w", sessionKey, err)
	}
	metrics.RecordLeaderboardRebuild(sessionKey, len(lb.Overall), time.Since(start).Seconds())
	s.logger.Named("aggregator").Info(ctx, "leaderboard rebuilt",
		logger.String("session", sessionKey),
		logger.Int("participants", len(lb.Overall)),
		logger.Int("problems", len(lb.Problems)),
	)
	return lb, nil
}
