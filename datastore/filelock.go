package datastore

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/flock"
)

// FileLock is a cross-process exclusive lock on a datastore file.
type FileLock interface {
	// TryLockContext keeps trying every retryInterval until it gets the
	// lock or ctx is done.
	TryLockContext(ctx context.Context, retryInterval time.Duration) (bool, error)
	Unlock() error
}

// FileLockFactory creates the lock guarding a given path.
type FileLockFactory interface {
	New(path string) FileLock
}

// FlockFactory produces advisory locks backed by gofrs/flock.
type FlockFactory struct{}

// New returns a flock on path. The lock file is created on first use.
func (FlockFactory) New(path string) FileLock {
	return flock.New(path)
}

const (
	lockTimeout    = 3 * time.Second
	lockMaxRetries = 3
	lockRetryDelay = 100 * time.Millisecond
)

// acquireFileLock takes lock, retrying a bounded number of times.
func acquireFileLock(ctx context.Context, lock FileLock) error {
	for attempt := 0; attempt < lockMaxRetries; attempt++ {
		locked, err := lock.TryLockContext(ctx, lockRetryDelay)
		if err != nil {
			return fmt.Errorf("failed to acquire lock: %w", err)
		}
		if locked {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockRetryDelay):
		}
	}
	return fmt.Errorf("failed to acquire lock after %d attempts", lockMaxRetries)
}

// withFileLock runs fn while holding lock.
func withFileLock(ctx context.Context, lock FileLock, fn func() error) error {
	ctx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()
	if err := acquireFileLock(ctx, lock); err != nil {
		return err
	}
	defer func() { _ = lock.Unlock() }()
	return fn()
}
