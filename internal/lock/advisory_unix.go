//go:build unix

package lock

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// FlockLocker uses flock(2). Locks belong to the open file description, so
// two handles on the same file conflict even inside one process.
type FlockLocker struct{}

// DefaultAdvisoryLocker returns the advisory locker for this platform.
func DefaultAdvisoryLocker() AdvisoryLocker {
	return FlockLocker{}
}

// TryLock attempts a non-blocking flock on f.
func (FlockLocker) TryLock(f *os.File, exclusive bool) error {
	how := unix.LOCK_SH
	if exclusive {
		how = unix.LOCK_EX
	}

	fd := int(f.Fd())
	for {
		err := unix.Flock(fd, how|unix.LOCK_NB)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EWOULDBLOCK), errors.Is(err, unix.EAGAIN):
			return ErrWouldBlock
		case errors.Is(err, unix.ENOLCK), errors.Is(err, unix.EOPNOTSUPP), errors.Is(err, unix.ENOSYS):
			return fmt.Errorf("%w: flock %s: %v", ErrUnsupported, f.Name(), err)
		default:
			return fmt.Errorf("flock %s: %w", f.Name(), err)
		}
	}
}

// Unlock drops the flock held on f.
func (FlockLocker) Unlock(f *os.File) error {
	if err := unix.Flock(int(f.Fd()), unix.LOCK_UN); err != nil {
		return fmt.Errorf("unlock %s: %w", f.Name(), err)
	}
	return nil
}
