package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/arthur-debert/nedb-adapter/adapter"
	"github.com/arthur-debert/nedb-adapter/datastore"
	"github.com/arthur-debert/nedb-adapter/query"
)

// CLIError is a user-facing error with optional suggestions.
type CLIError struct {
	Operation   string
	Cause       string
	Details     string
	Suggestions []string
	Underlying  error
}

func (e *CLIError) Error() string {
	var msg strings.Builder
	if e.Operation != "" {
		fmt.Fprintf(&msg, "failed to %s", e.Operation)
	} else {
		msg.WriteString("operation failed")
	}
	if e.Cause != "" {
		fmt.Fprintf(&msg, ": %s", e.Cause)
	}
	if e.Details != "" {
		fmt.Fprintf(&msg, " (%s)", e.Details)
	}
	if len(e.Suggestions) > 0 {
		msg.WriteString("\n\nSuggestions:")
		for i, s := range e.Suggestions {
			fmt.Fprintf(&msg, "\n  %d. %s", i+1, s)
		}
	}
	return msg.String()
}

func (e *CLIError) Unwrap() error {
	return e.Underlying
}

// NewConfigError reports a configuration problem.
func NewConfigError(operation, issue string, suggestions ...string) *CLIError {
	return &CLIError{
		Operation:   operation,
		Cause:       fmt.Sprintf("configuration error: %s", issue),
		Suggestions: suggestions,
	}
}

// NewInputError reports a malformed flag or argument.
func NewInputError(operation, field string, err error, suggestions ...string) *CLIError {
	return &CLIError{
		Operation:   operation,
		Cause:       fmt.Sprintf("invalid %s", field),
		Details:     err.Error(),
		Suggestions: suggestions,
		Underlying:  err,
	}
}

// NewStoreError describes a failed adapter call by the error kind.
func NewStoreError(operation string, err error, suggestions ...string) *CLIError {
	cause := "store operation failed"
	switch {
	case errors.Is(err, query.ErrInvalidCriteria):
		cause = "invalid criteria"
		suggestions = append(suggestions, CommonSuggestions.CheckWhere)
	case errors.Is(err, datastore.ErrConstraintViolated):
		cause = "unique constraint violated"
	case errors.Is(err, datastore.ErrDatastoreBusy):
		cause = "data file is locked by another process"
	case errors.Is(err, adapter.ErrUnknownModel):
		cause = "unknown model"
		suggestions = append(suggestions, CommonSuggestions.CheckModels)
	}
	return &CLIError{
		Operation:   operation,
		Cause:       cause,
		Details:     err.Error(),
		Suggestions: suggestions,
		Underlying:  err,
	}
}

// CommonSuggestions are shared hint texts.
var CommonSuggestions = struct {
	CheckConfig string
	CheckDBPath string
	CheckWhere  string
	CheckJSON   string
	CheckModels string
}{
	CheckConfig: "Check your configuration file or NEDB_* environment variables",
	CheckDBPath: "Verify --db-path points to an existing directory, or pass --in-memory",
	CheckWhere:  `Use a JSON object, e.g. --where '{"age": {">": 2}}'`,
	CheckJSON:   "Quote JSON arguments so the shell passes them unchanged",
	CheckModels: "Run 'nedb describe <model>' for a model listed in the config file",
}
