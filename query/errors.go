package query

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCriteria wraps every translation and parse failure.
	ErrInvalidCriteria = errors.New("invalid criteria")

	// ErrUnknownOperator is returned for an operator outside the supported set.
	ErrUnknownOperator = errors.New("unknown operator")
)

// TranslationError locates a criteria problem. Path uses dotted notation
// rooted at the directive, e.g. "where.or[1].age".
type TranslationError struct {
	Path   string
	Reason string
	Err    error
}

func (e *TranslationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("invalid criteria: %s", e.Reason)
	}
	return fmt.Sprintf("invalid criteria at %s: %s", e.Path, e.Reason)
}

// Unwrap exposes ErrInvalidCriteria plus the specific cause, if any.
func (e *TranslationError) Unwrap() []error {
	if e.Err == nil || e.Err == ErrInvalidCriteria {
		return []error{ErrInvalidCriteria}
	}
	return []error{ErrInvalidCriteria, e.Err}
}

func invalid(path, format string, args ...any) error {
	return &TranslationError{Path: path, Reason: fmt.Sprintf(format, args...)}
}

func unknownOperator(path, op string) error {
	return &TranslationError{Path: path, Reason: fmt.Sprintf("unknown operator %q", op), Err: ErrUnknownOperator}
}
