package datastore

import (
	"errors"
	"fmt"
)

var (
	// ErrConstraintViolated is returned when a write would break a unique index.
	ErrConstraintViolated = errors.New("unique constraint violated")

	// ErrInvalidQuery reports a malformed native query.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrInvalidUpdate reports a malformed update document.
	ErrInvalidUpdate = errors.New("invalid update")

	// ErrInvalidDocument reports a document that cannot be stored.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrCannotModifyID is returned when an update tries to change _id.
	ErrCannotModifyID = errors.New("cannot modify _id")

	// ErrDatastoreBusy is returned by Drop when another holder has the data file.
	ErrDatastoreBusy = errors.New("datastore file is currently in use")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("datastore is closed")

	// ErrNoFieldName is returned by EnsureIndex without a field name.
	ErrNoFieldName = errors.New("index requires a field name")
)

// ConstraintError describes the unique index and key that rejected a write.
type ConstraintError struct {
	Field string
	Value any
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("can't insert key %v, it violates the unique constraint on %q", e.Value, e.Field)
}

func (e *ConstraintError) Unwrap() error {
	return ErrConstraintViolated
}
