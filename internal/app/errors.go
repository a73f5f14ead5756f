package service

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks intake problems the participant can fix.
	ErrValidation = errors.New("invalid submission")
	// ErrDuplicate is returned when the submission id was already accepted.
	ErrDuplicate = errors.New("duplicate submission")
	// ErrTokenNotFound is returned for unknown result tokens.
	ErrTokenNotFound = errors.New("result token not found")
	// ErrUnknownSession is returned for session keys the catalog does not know.
	ErrUnknownSession = errors.New("unknown session")
	// ErrUnknownPass is returned by RunPass for unknown pass names.
	ErrUnknownPass = errors.New("unknown pass")
	// ErrSubmissionNotFound is returned for unknown submission ids.
	ErrSubmissionNotFound = errors.New("submission not found")
)

// ValidationError carries one participant facing message.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Unwrap makes errors.Is(err, ErrValidation) hold.
func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
