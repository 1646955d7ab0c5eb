// Package storage holds concurrency primitives shared by datastore implementations.
package storage

import "sync"

// OperationType selects the lock a guarded operation needs.
type OperationType int

const (
	// ReadOperation takes the shared lock. Readers run concurrently.
	ReadOperation OperationType = iota

	// WriteOperation takes the exclusive lock.
	WriteOperation
)

// String returns a readable name for log fields.
func (o OperationType) String() string {
	if o == WriteOperation {
		return "write"
	}
	return "read"
}

// LockManager serializes access to a datastore's in-memory state.
// All reads and writes of the document set and its indexes go through it,
// so callers never lock and unlock by hand.
type LockManager struct {
	mu sync.RWMutex
}

// NewLockManager creates a ready-to-use lock manager.
func NewLockManager() *LockManager {
	return &LockManager{}
}

func (lm *LockManager) lock(opType OperationType) func() {
	if opType == WriteOperation {
		lm.mu.Lock()
		return lm.mu.Unlock
	}
	lm.mu.RLock()
	return lm.mu.RUnlock
}

// Execute runs fn while holding the lock for opType. The lock is released
// when fn returns, including on panic.
//
//	err := lm.Execute(storage.WriteOperation, func() error {
//	    return ds.persist()
//	})
func (lm *LockManager) Execute(opType OperationType, fn func() error) error {
	unlock := lm.lock(opType)
	defer unlock()
	return fn()
}

// Query runs fn under the lock for opType and returns its typed result.
func Query[T any](lm *LockManager, opType OperationType, fn func() (T, error)) (T, error) {
	unlock := lm.lock(opType)
	defer unlock()
	return fn()
}
