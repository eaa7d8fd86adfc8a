package lock

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrLockTimeout is returned when the in-process lock for a path could not
	// be acquired within the caller's budget.
	ErrLockTimeout = errors.New("lock acquisition timed out")

	// ErrWouldBlock is returned by an AdvisoryLocker when another holder owns
	// the OS lock. It is transient and the caller may retry.
	ErrWouldBlock = errors.New("advisory lock held by another owner")

	// ErrUnsupported is returned by an AdvisoryLocker when the platform or the
	// filesystem cannot provide advisory locks at all.
	ErrUnsupported = errors.New("advisory locks not supported")

	// ErrReleased is returned when a released guard is released again.
	ErrReleased = errors.New("guard already released")
)

// LockTimeoutError describes an in-process lock wait that ran out of time.
type LockTimeoutError struct {
	Path    string
	Timeout time.Duration
	Cause   error
}

func (e *LockTimeoutError) Error() string {
	msg := fmt.Sprintf("lock %s: not acquired within %s", e.Path, e.Timeout)
	if errors.Is(e.Cause, context.Canceled) {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Is makes errors.Is(err, ErrLockTimeout) true for every LockTimeoutError.
func (e *LockTimeoutError) Is(target error) bool {
	return target == ErrLockTimeout
}

func (e *LockTimeoutError) Unwrap() error {
	return e.Cause
}
