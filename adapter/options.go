package adapter

import (
	"github.com/rs/zerolog"

	"github.com/arthur-debert/nedb-adapter/datastore"
)

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the logger passed down to every collection and datastore.
func WithLogger(logger zerolog.Logger) Option {
	return func(a *Adapter) {
		a.logger = logger
	}
}

// WithMetrics records operation metrics.
func WithMetrics(m *Metrics) Option {
	return func(a *Adapter) {
		a.metrics = m
	}
}

// WithDatastoreOptions appends options applied to every datastore the
// adapter opens, e.g. a test file system.
func WithDatastoreOptions(opts ...datastore.Option) Option {
	return func(a *Adapter) {
		a.datastoreOpts = append(a.datastoreOpts, opts...)
	}
}
