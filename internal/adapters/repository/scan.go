package repository

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/okian/foldboard/internal/domain/model"
)

func jobArgs(j model.Job) []any {
	return []any{
		j.ID, j.SubmissionID, j.ParticipantID, j.ProblemID, j.Candidate, j.Sequence, string(j.State), j.Attempts,
		j.ExternalID, string(j.FailureReason), j.FailureDetail, j.Descriptor, j.DescriptorPath, j.OutputDir, j.ArtifactPath,
		j.CreatedAt.UTC(), j.UpdatedAt.UTC(), j.FirstQueuedAt, j.UnknownSince, j.SchedulerDoneAt,
	}
}

func scanJob(row pgx.Row) (model.Job, error) {
	var (
		j      model.Job
		state  string
		reason string
	)
	err := row.Scan(
		&j.ID, &j.SubmissionID, &j.ParticipantID, &j.ProblemID, &j.Candidate, &j.Sequence, &state, &j.Attempts,
		&j.ExternalID, &reason, &j.FailureDetail, &j.Descriptor, &j.DescriptorPath, &j.OutputDir, &j.ArtifactPath,
		&j.CreatedAt, &j.UpdatedAt, &j.FirstQueuedAt, &j.UnknownSince, &j.SchedulerDoneAt,
	)
	if err != nil {
		return model.Job{}, err
	}
	j.State = model.JobState(state)
	j.FailureReason = model.FailureReason(reason)
	j.CreatedAt, j.UpdatedAt = j.CreatedAt.UTC(), j.UpdatedAt.UTC()
	j.FirstQueuedAt = utcPtr(j.FirstQueuedAt)
	j.UnknownSince = utcPtr(j.UnknownSince)
	j.SchedulerDoneAt = utcPtr(j.SchedulerDoneAt)
	return j, nil
}

func scanSubmission(row pgx.Row) (model.Submission, error) {
	var (
		sub   model.Submission
		seqs  []byte
		token *string
	)
	if err := row.Scan(&sub.ID, &sub.ParticipantID, &sub.Contact, &sub.SubmittedAt, &seqs, &token, &sub.PublishedAt); err != nil {
		return model.Submission{}, err
	}
	if err := json.Unmarshal(seqs, &sub.Sequences); err != nil {
		return model.Submission{}, fmt.Errorf("decode sequences of %s: %w", sub.ID, err)
	}
	if token != nil {
		sub.ResultToken = *token
	}
	sub.SubmittedAt = sub.SubmittedAt.UTC()
	sub.PublishedAt = utcPtr(sub.PublishedAt)
	return sub, nil
}

func decodeResult(r *model.EvaluationResult, metrics, pairs []byte) error {
	if err := json.Unmarshal(metrics, &r.Metrics); err != nil {
		return fmt.Errorf("decode metrics of %s: %w", r.JobID, err)
	}
	if len(pairs) > 0 {
		if err := json.Unmarshal(pairs, &r.ChainPairIPTM); err != nil {
			return fmt.Errorf("decode chain pair iptm of %s: %w", r.JobID, err)
		}
	}
	r.CreatedAt = r.CreatedAt.UTC()
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
