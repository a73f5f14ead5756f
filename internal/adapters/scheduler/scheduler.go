// Package scheduler adapts external batch schedulers to the submit/status/cancel
// contract the orchestration passes drive.
package scheduler

import (
	"context"
)

// Status is the scheduler's view of one external job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	// StatusUnknown means the scheduler has no record of the job or did not answer.
	StatusUnknown Status = "unknown"
)

// Request is everything a scheduler needs to run one prediction attempt.
type Request struct {
	JobID          string
	Participant    string
	DescriptorPath string
	OutputDir      string
	LogsDir        string
}

// Scheduler submits, queries and cancels external jobs.
type Scheduler interface {
	Name() string
	// Submit returns the external job id, or ErrQueueFull when the scheduler
	// refuses new work for now.
	Submit(ctx context.Context, req Request) (string, error)
	Status(ctx context.Context, externalID string) (Status, error)
	// Cancel is best effort.
	Cancel(ctx context.Context, externalID string) error
}
