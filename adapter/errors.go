package adapter

import (
	"errors"
	"fmt"
)

var (
	ErrIdentityMissing   = errors.New("connection is missing an identity")
	ErrIdentityDuplicate = errors.New("connection identity is already registered")
	ErrModelDuplicate    = errors.New("model is registered twice on the connection")
	ErrUnknownConnection = errors.New("unknown connection")
	ErrUnknownModel      = errors.New("unknown model")
)

// ConfigError reports a connection that could not be registered.
type ConfigError struct {
	Connection string
	Reason     string
	Err        error
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("connection %q: %s", e.Connection, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
