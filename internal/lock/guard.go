// Package lock serializes access to flat files shared by many goroutines and,
// where the platform allows it, by other processes.
//
// Each canonical path gets one in-process Mutex from a Registry. A Manager
// turns that mutex plus an OS advisory lock on a sibling ".lock" file into a
// Guard:
//
//	g, err := mgr.Acquire("data/classes.json", 5*time.Second, lock.Exclusive)
//	if err != nil {
//		return err // *LockTimeoutError
//	}
//	defer g.Release()
//
// Failing to get the in-process mutex in time is an error. Failing to get the
// OS lock is not: the guard records the reason, logs a warning and carries on
// in degraded mode, since the mutex already excludes every goroutine of the
// serving process.
package lock

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Mode is the access intent of a guard.
type Mode int

const (
	// Exclusive excludes every other holder.
	Exclusive Mode = iota
	// Shared asks the OS for a shared lock. In-process the mutex is still
	// exclusive, so concurrent readers are not guaranteed.
	Shared
)

func (m Mode) String() string {
	if m == Shared {
		return "shared"
	}
	return "exclusive"
}

// State is the lifecycle position of a Guard.
type State int

const (
	StateIdle State = iota
	StateMemoryHeld
	StateSystemHeld
	StateSystemDegraded
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateMemoryHeld:
		return "memory_held"
	case StateSystemHeld:
		return "system_held"
	case StateSystemDegraded:
		return "system_degraded"
	case StateReleased:
		return "released"
	default:
		return "unknown"
	}
}

// Guard is one held acquisition of a path. It belongs to the goroutine that
// acquired it and must be released exactly once, normally with defer.
type Guard struct {
	path     string
	mode     Mode
	mu       *Mutex
	locker   AdvisoryLocker
	file     *os.File
	state    State
	degraded error
	heldAt   time.Time
	log      zerolog.Logger
}

// Path returns the canonical path the guard protects.
func (g *Guard) Path() string { return g.path }

// Mode returns the requested access mode.
func (g *Guard) Mode() Mode { return g.mode }

// State returns the current lifecycle state.
func (g *Guard) State() State { return g.state }

// Degraded reports whether the guard runs without an OS lock.
func (g *Guard) Degraded() bool { return g.state == StateSystemDegraded }

// DegradedReason returns why the OS lock was not taken, or nil.
func (g *Guard) DegradedReason() error { return g.degraded }

// HeldFor returns how long the in-process mutex has been held.
func (g *Guard) HeldFor() time.Duration {
	if g.heldAt.IsZero() {
		return 0
	}
	return time.Since(g.heldAt)
}

// Release drops the OS lock, closes the lock file and unlocks the mutex, in
// that order. The mutex is unlocked even when the OS side fails; the first
// OS-side error is returned for diagnostics only.
func (g *Guard) Release() error {
	if g.state == StateReleased {
		return ErrReleased
	}

	var firstErr error
	if g.file != nil {
		if err := g.locker.Unlock(g.file); err != nil {
			g.log.Warn().Err(err).Str("path", g.path).Msg("Failed to release OS lock")
			firstErr = err
		}
		if err := g.file.Close(); err != nil {
			g.log.Warn().Err(err).Str("path", g.path).Msg("Failed to close lock file")
			if firstErr == nil {
				firstErr = err
			}
		}
		g.file = nil
	}

	held := g.HeldFor()
	g.state = StateReleased
	g.mu.Unlock()

	g.log.Debug().
		Str("path", g.path).
		Dur("held", held).
		Msg("Lock released")
	return firstErr
}
