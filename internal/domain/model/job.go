package model

import (
	"fmt"
	"time"
)

// JobState is the lifecycle state of a Job.
type JobState string

const (
	JobPending   JobState = "pending"
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
	JobEvaluated JobState = "evaluated"
	JobPublished JobState = "published"
)

// AllJobStates lists states in lifecycle order.
var AllJobStates = []JobState{JobPending, JobQueued, JobRunning, JobSucceeded, JobEvaluated, JobPublished, JobFailed}

// String returns the string representation of the job state.
func (s JobState) String() string { return string(s) }

// IsTerminal reports whether no further transition can happen.
func (s JobState) IsTerminal() bool {
	return s == JobFailed || s == JobPublished
}

// IsSettled reports whether the job counts as finished for the publish barrier.
func (s JobState) IsSettled() bool {
	return s == JobFailed || s == JobEvaluated || s == JobPublished
}

// InFlight reports whether the scheduler owns the job.
func (s JobState) InFlight() bool {
	return s == JobQueued || s == JobRunning
}

// ValidJobTransitions lists the forward edges of the machine.
var ValidJobTransitions = map[JobState][]JobState{
	JobPending:   {JobQueued, JobFailed},
	JobQueued:    {JobRunning, JobSucceeded, JobFailed},
	JobRunning:   {JobSucceeded, JobFailed},
	JobSucceeded: {JobEvaluated, JobFailed},
	JobEvaluated: {JobPublished},
}

// CanTransitionTo reports whether moving from s to next is a forward edge.
func (s JobState) CanTransitionTo(next JobState) bool {
	for _, allowed := range ValidJobTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// CanRetry reports whether a failed prediction attempt in state s may start a new attempt.
// A retry resets the job to pending with attempts+1; ordering is over (attempt, state).
func (s JobState) CanRetry() bool {
	return s == JobQueued || s == JobRunning
}

// FailureReason records why a job reached failed.
type FailureReason string

const (
	ReasonNone             FailureReason = ""
	ReasonTimeout          FailureReason = "timeout"
	ReasonPredictionFailed FailureReason = "prediction_failed"
	ReasonEvaluationError  FailureReason = "evaluation_error"
	ReasonInvalidInput     FailureReason = "invalid_input"
)

// Job is one (submission, problem, candidate) unit of prediction work.
type Job struct {
	ID            string `json:"id"`
	SubmissionID  string `json:"submission_id"`
	ParticipantID string `json:"participant_id"`
	ProblemID     string `json:"problem_id"`
	// Candidate is the 1-based index of the sequence within the problem.
	Candidate int    `json:"candidate"`
	Sequence  string `json:"sequence"`

	State         JobState      `json:"state"`
	Attempts      int           `json:"attempts"`
	ExternalID    string        `json:"external_id,omitempty"`
	FailureReason FailureReason `json:"failure_reason,omitempty"`
	// FailureDetail is internal only and never shown to participants.
	FailureDetail string `json:"-"`

	// Descriptor is the predictor input document of the current attempt.
	Descriptor     []byte `json:"-"`
	DescriptorPath string `json:"-"`
	OutputDir      string `json:"-"`
	ArtifactPath   string `json:"-"`

	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	FirstQueuedAt *time.Time `json:"first_queued_at,omitempty"`
	// UnknownSince marks the first poll that could not find the job on the scheduler.
	UnknownSince *time.Time `json:"-"`
	// SchedulerDoneAt marks a scheduler success still waiting for its artifact.
	SchedulerDoneAt *time.Time `json:"-"`
}

// JobID returns the deterministic id of a (submission, problem, candidate) triple.
func JobID(submissionID, problemID string, candidate int) string {
	return fmt.Sprintf("%s_%s_seq%d", submissionID, problemID, candidate)
}

// Observation is the write half of a compare-and-set transition.
// Zero-valued fields leave the stored value untouched unless the matching Clear flag is set.
type Observation struct {
	ExternalID      string
	FailureReason   FailureReason
	FailureDetail   string
	ArtifactPath    string
	UnknownSince    *time.Time
	ClearUnknown    bool
	SchedulerDoneAt *time.Time
	FirstQueuedAt   *time.Time
}

// Apply writes the observation onto j.
func (o Observation) Apply(j *Job) {
	if o.ExternalID != "" {
		j.ExternalID = o.ExternalID
	}
	if o.FailureReason != ReasonNone {
		j.FailureReason = o.FailureReason
	}
	if o.FailureDetail != "" {
		j.FailureDetail = o.FailureDetail
	}
	if o.ArtifactPath != "" {
		j.ArtifactPath = o.ArtifactPath
	}
	if o.ClearUnknown {
		j.UnknownSince = nil
	} else if o.UnknownSince != nil && j.UnknownSince == nil {
		j.UnknownSince = o.UnknownSince
	}
	if o.SchedulerDoneAt != nil && j.SchedulerDoneAt == nil {
		j.SchedulerDoneAt = o.SchedulerDoneAt
	}
	if o.FirstQueuedAt != nil && j.FirstQueuedAt == nil {
		j.FirstQueuedAt = o.FirstQueuedAt
	}
}
