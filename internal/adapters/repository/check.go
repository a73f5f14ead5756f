package repository

import (
	"fmt"
	"time"

	"github.com/okian/foldboard/internal/domain/model"
)

// applyTransition validates and applies a transition to a loaded job.
func applyTransition(cur *model.Job, from, to model.JobState, obs model.Observation, now time.Time) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	if cur.State != from {
		return fmt.Errorf("%w: %s is %s, expected %s", ErrStaleState, cur.ID, cur.State, from)
	}
	obs.Apply(cur)
	cur.State = to
	cur.UpdatedAt = now
	return nil
}

func applyAnnotation(cur *model.Job, state model.JobState, obs model.Observation, now time.Time) error {
	if cur.State != state {
		return fmt.Errorf("%w: %s is %s, expected %s", ErrStaleState, cur.ID, cur.State, state)
	}
	obs.Apply(cur)
	cur.UpdatedAt = now
	return nil
}

// applyRetry swaps in the next attempt. Creation time, first queue time and
// identity of the job are kept.
func applyRetry(cur *model.Job, next model.Job, now time.Time) error {
	if next.ID != cur.ID || next.State != model.JobPending {
		return fmt.Errorf("%w: retry of %s must be a pending attempt", ErrInvalidTransition, cur.ID)
	}
	if !cur.State.CanRetry() || cur.Attempts != next.Attempts-1 {
		return fmt.Errorf("%w: %s is %s attempt %d, retry wants attempt %d", ErrStaleState, cur.ID, cur.State, cur.Attempts, next.Attempts)
	}
	next.CreatedAt = cur.CreatedAt
	next.FirstQueuedAt = cur.FirstQueuedAt
	next.ExternalID = ""
	next.ArtifactPath = ""
	next.FailureReason = model.ReasonNone
	next.FailureDetail = ""
	next.UnknownSince = nil
	next.SchedulerDoneAt = nil
	next.UpdatedAt = now
	*cur = next
	return nil
}
