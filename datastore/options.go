package datastore

import (
	"time"

	"github.com/rs/zerolog"
)

// Option configures a Datastore.
type Option func(*Datastore)

// WithFilename sets the data file. An empty name makes the store in-memory.
func WithFilename(name string) Option {
	return func(ds *Datastore) {
		ds.filename = name
	}
}

// WithInMemoryOnly keeps all data in memory and never touches the file system.
func WithInMemoryOnly(inMemory bool) Option {
	return func(ds *Datastore) {
		ds.inMemoryOnly = inMemory
	}
}

// WithFileSystem swaps the file system implementation.
func WithFileSystem(fsys FileSystem) Option {
	return func(ds *Datastore) {
		ds.fs = fsys
	}
}

// WithFileLockFactory swaps the cross-process lock implementation.
func WithFileLockFactory(factory FileLockFactory) Option {
	return func(ds *Datastore) {
		ds.lockFactory = factory
	}
}

// WithIDGenerator overrides how _id values are minted.
func WithIDGenerator(fn func() string) Option {
	return func(ds *Datastore) {
		ds.newID = fn
	}
}

// WithTimeFunc sets the clock used for file metadata.
func WithTimeFunc(fn func() time.Time) Option {
	return func(ds *Datastore) {
		ds.timeFunc = fn
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(ds *Datastore) {
		ds.logger = logger
	}
}
