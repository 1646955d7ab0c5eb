package datastore

import (
	"context"
	"sync"
	"time"
)

// MemFileLock is a FileLock for tests. Hold simulates another process
// owning the file; LockErr makes every attempt fail outright.
type MemFileLock struct {
	mu      sync.Mutex
	locked  bool
	held    bool
	LockErr error

	Attempts int
	Unlocks  int
}

func (l *MemFileLock) TryLockContext(ctx context.Context, retryInterval time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Attempts++
	if l.LockErr != nil {
		return false, l.LockErr
	}
	if l.locked || l.held {
		return false, nil
	}
	l.locked = true
	return true, nil
}

func (l *MemFileLock) Unlock() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Unlocks++
	l.locked = false
	return nil
}

// Hold marks the lock as owned elsewhere until Release is called.
func (l *MemFileLock) Hold() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = true
}

// Release undoes Hold.
func (l *MemFileLock) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = false
}

// Locked reports whether the datastore currently holds the lock.
func (l *MemFileLock) Locked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.locked
}

// MemLockFactory hands out one MemFileLock per path.
type MemLockFactory struct {
	mu    sync.Mutex
	locks map[string]*MemFileLock
}

// NewMemLockFactory returns an empty factory.
func NewMemLockFactory() *MemLockFactory {
	return &MemLockFactory{locks: make(map[string]*MemFileLock)}
}

func (f *MemLockFactory) New(path string) FileLock {
	return f.Lock(path)
}

// Lock returns the lock for path, creating it if needed.
func (f *MemLockFactory) Lock(path string) *MemFileLock {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.locks[path]
	if !ok {
		l = &MemFileLock{}
		f.locks[path] = l
	}
	return l
}
