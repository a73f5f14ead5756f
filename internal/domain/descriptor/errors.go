package descriptor

import "errors"

var (
	// ErrUnknownProblem is returned when a submission names a problem the catalog does not know.
	ErrUnknownProblem = errors.New("unknown problem")
	// ErrProblemClosed is returned when the problem's session is archived.
	ErrProblemClosed = errors.New("problem not accepting submissions")
	// ErrEmptySubmission is returned when no candidate sequence is present.
	ErrEmptySubmission = errors.New("submission has no sequences")
	// ErrTooManySequences is returned when a problem exceeds the per-problem candidate limit.
	ErrTooManySequences = errors.New("too many sequences for problem")
	// ErrMissingTarget is returned for binder problems without a target sequence.
	ErrMissingTarget = errors.New("binder problem has no target sequence")
)
