// Package repository persists submissions, jobs and evaluation results.
//
// Job state changes are compare-and-set on the current state: a writer that
// lost a race gets ErrStaleState and must reload.
package repository

import (
	"context"
	"time"

	"github.com/okian/foldboard/internal/domain/model"
)

// Store is the single source of truth for the orchestrator.
type Store interface {
	// CreateSubmission stores a submission together with all of its jobs, or nothing.
	// Returns ErrConflict if the submission id exists.
	CreateSubmission(ctx context.Context, sub model.Submission, jobs []model.Job) error
	Submission(ctx context.Context, id string) (model.Submission, error)
	SubmissionByToken(ctx context.Context, token string) (model.Submission, error)
	// Submissions lists every submission ordered by submission time.
	Submissions(ctx context.Context) ([]model.Submission, error)
	// SetResultToken attaches the token once; a second call with another token is ErrConflict.
	SetResultToken(ctx context.Context, submissionID, token string, at time.Time) (model.Submission, error)
	// ProblemHasSubmissions reports whether any job references the problem.
	ProblemHasSubmissions(ctx context.Context, problemID string) (bool, error)

	Job(ctx context.Context, id string) (model.Job, error)
	JobsBySubmission(ctx context.Context, submissionID string) ([]model.Job, error)
	// JobsByState lists jobs in any of states, oldest first.
	JobsByState(ctx context.Context, states ...model.JobState) ([]model.Job, error)
	CountByState(ctx context.Context) (map[model.JobState]int, error)

	// Transition moves a job from one state to the next if it is still in from.
	Transition(ctx context.Context, id string, from, to model.JobState, obs model.Observation) (model.Job, error)
	// Annotate records an observation without changing state, if the job is still in state.
	Annotate(ctx context.Context, id string, state model.JobState, obs model.Observation) (model.Job, error)
	// Retry replaces the job with next, a fresh pending attempt, if the stored job is
	// still attempt next.Attempts-1 in a retryable state.
	Retry(ctx context.Context, next model.Job) (model.Job, error)

	// CommitEvaluation appends r and moves its job from succeeded to evaluated as
	// one step. A job no longer in succeeded gets ErrStaleState and no result.
	CommitEvaluation(ctx context.Context, r model.EvaluationResult) (model.Job, model.EvaluationResult, error)
	// AddEvaluation appends a result with the next revision number for its job.
	AddEvaluation(ctx context.Context, r model.EvaluationResult) (model.EvaluationResult, error)
	// LatestEvaluations returns the highest revision per job id; ids without results are absent.
	LatestEvaluations(ctx context.Context, jobIDs []string) (map[string]model.EvaluationResult, error)

	Close() error
}
