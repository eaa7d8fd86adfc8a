//go:build windows

package lock

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/windows"
)

// LockFileLocker uses LockFileEx on the first byte of the file.
type LockFileLocker struct{}

// DefaultAdvisoryLocker returns the advisory locker for this platform.
func DefaultAdvisoryLocker() AdvisoryLocker {
	return LockFileLocker{}
}

// TryLock attempts a non-blocking LockFileEx on f.
func (LockFileLocker) TryLock(f *os.File, exclusive bool) error {
	flags := uint32(windows.LOCKFILE_FAIL_IMMEDIATELY)
	if exclusive {
		flags |= windows.LOCKFILE_EXCLUSIVE_LOCK
	}

	ol := &windows.Overlapped{}
	err := windows.LockFileEx(windows.Handle(f.Fd()), flags, 0, 1, 0, ol)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, windows.ERROR_LOCK_VIOLATION), errors.Is(err, windows.ERROR_IO_PENDING):
		return ErrWouldBlock
	case errors.Is(err, windows.ERROR_NOT_SUPPORTED), errors.Is(err, windows.ERROR_INVALID_FUNCTION):
		return fmt.Errorf("%w: LockFileEx %s: %v", ErrUnsupported, f.Name(), err)
	default:
		return fmt.Errorf("LockFileEx %s: %w", f.Name(), err)
	}
}

// Unlock releases the byte range locked by TryLock.
func (LockFileLocker) Unlock(f *os.File) error {
	ol := &windows.Overlapped{}
	if err := windows.UnlockFileEx(windows.Handle(f.Fd()), 0, 1, 0, ol); err != nil {
		return fmt.Errorf("UnlockFileEx %s: %w", f.Name(), err)
	}
	return nil
}
