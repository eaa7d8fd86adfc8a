package lock

import (
	"os"
)

// AdvisoryLocker takes and drops OS-level advisory locks on open files.
//
// TryLock must not block: it returns ErrWouldBlock when another owner holds
// a conflicting lock and ErrUnsupported when locking cannot work at all.
// Any other error is treated as structural by the Manager.
type AdvisoryLocker interface {
	TryLock(f *os.File, exclusive bool) error
	Unlock(f *os.File) error
}

// NopLocker never locks. Every guard taken with it runs in degraded mode,
// protected by the in-process mutex only.
type NopLocker struct{}

// TryLock always reports ErrUnsupported.
func (NopLocker) TryLock(_ *os.File, _ bool) error {
	return ErrUnsupported
}

// Unlock is a no-op.
func (NopLocker) Unlock(_ *os.File) error {
	return nil
}
