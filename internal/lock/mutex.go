package lock

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Mutex is an exclusive in-process lock whose wait can be bounded.
// The zero value is not usable; mutexes are handed out by a Registry.
type Mutex struct {
	sem *semaphore.Weighted
}

func newMutex() *Mutex {
	return &Mutex{sem: semaphore.NewWeighted(1)}
}

// TryLock acquires the mutex without waiting and reports whether it did.
func (m *Mutex) TryLock() bool {
	return m.sem.TryAcquire(1)
}

// LockContext blocks until the mutex is acquired or ctx is done.
func (m *Mutex) LockContext(ctx context.Context) error {
	return m.sem.Acquire(ctx, 1)
}

// Unlock releases the mutex. Unlocking an unlocked Mutex panics.
func (m *Mutex) Unlock() {
	m.sem.Release(1)
}
