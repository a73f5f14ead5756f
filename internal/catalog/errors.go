package catalog

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrUnknownSession  = errors.New("unknown session")
	ErrInvalidProblem  = errors.New("invalid problem")
	ErrProblemInUse    = errors.New("problem has submissions")
	ErrProblemNotFound = errors.New("problem not in session")
)
