package scheduler

import "errors"

var (
	// ErrQueueFull is returned when the scheduler's submit limit is reached.
	ErrQueueFull = errors.New("scheduler queue full")
	// ErrSubmit is returned when the scheduler rejected a job for another reason.
	ErrSubmit = errors.New("scheduler submit failed")
	// ErrUnknownJob is returned by Cancel for ids the scheduler never issued.
	ErrUnknownJob = errors.New("unknown external job")
)
