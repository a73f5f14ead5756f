package repository

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("already exists")
	ErrStaleState        = errors.New("job state changed concurrently")
	ErrInvalidTransition = errors.New("invalid job state transition")
)
