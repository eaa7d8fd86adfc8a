package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultTimeout bounds an acquisition when the caller passes zero.
	DefaultTimeout = 10 * time.Second

	// DefaultPollInterval is the backoff between OS lock attempts.
	DefaultPollInterval = 50 * time.Millisecond

	// LockFileSuffix is appended to a document path to name its lock file.
	LockFileSuffix = ".lock"
)

// Manager hands out Guards. It is safe for concurrent use.
type Manager struct {
	registry     *Registry
	advisory     AdvisoryLocker
	stats        *Statistics
	log          zerolog.Logger
	pollInterval time.Duration
}

// Option configures a Manager.
type Option func(*Manager)

// WithRegistry shares a Registry between managers.
func WithRegistry(r *Registry) Option {
	return func(m *Manager) {
		m.registry = r
	}
}

// WithAdvisoryLocker replaces the platform advisory locker.
func WithAdvisoryLocker(l AdvisoryLocker) Option {
	return func(m *Manager) {
		m.advisory = l
	}
}

// WithStatistics shares a Statistics instance.
func WithStatistics(s *Statistics) Option {
	return func(m *Manager) {
		m.stats = s
	}
}

// WithLogger sets the logger used for acquisition events.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) {
		m.log = l
	}
}

// WithPollInterval sets the backoff between OS lock attempts.
func WithPollInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.pollInterval = d
		}
	}
}

// NewManager creates a Manager with a fresh Registry and Statistics, the
// platform advisory locker and a no-op logger unless overridden.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		log:          zerolog.Nop(),
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = NewRegistry()
	}
	if m.advisory == nil {
		m.advisory = DefaultAdvisoryLocker()
	}
	if m.stats == nil {
		m.stats = NewStatistics()
	}
	return m
}

// Registry returns the registry backing this manager.
func (m *Manager) Registry() *Registry { return m.registry }

// Statistics returns the live counters.
func (m *Manager) Statistics() *Statistics { return m.stats }

// Stats returns a snapshot of the counters including the number of lock entries.
func (m *Manager) Stats() Snapshot {
	s := m.stats.Snapshot()
	s.ActiveLocks = m.registry.Len()
	return s
}

// Acquire is AcquireContext with a background context.
func (m *Manager) Acquire(path string, timeout time.Duration, mode Mode) (*Guard, error) {
	return m.AcquireContext(context.Background(), path, timeout, mode)
}

// AcquireContext locks path for the caller.
//
// The in-process mutex must be obtained within timeout, otherwise a
// *LockTimeoutError is returned. Whatever is left of the budget is spent
// polling for the OS lock; if that fails the guard is returned in degraded
// mode rather than as an error.
func (m *Manager) AcquireContext(ctx context.Context, path string, timeout time.Duration, mode Mode) (*Guard, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	start := time.Now()
	key, _ := m.registry.Canonical(path)
	mu := m.registry.GetLock(key)

	contended := false
	if !mu.TryLock() {
		contended = true
		waitCtx, cancel := context.WithTimeout(ctx, timeout)
		err := mu.LockContext(waitCtx)
		cancel()
		if err != nil {
			m.stats.conflicts.Inc()
			m.stats.timeouts.Inc()
			m.log.Warn().
				Str("path", key).
				Dur("timeout", timeout).
				Msg("Timed out waiting for in-process lock")
			return nil, &LockTimeoutError{Path: key, Timeout: timeout, Cause: err}
		}
	}

	g := &Guard{
		path:   key,
		mode:   mode,
		mu:     mu,
		locker: m.advisory,
		state:  StateMemoryHeld,
		heldAt: time.Now(),
		log:    m.log,
	}

	if m.lockSystem(ctx, g, timeout-time.Since(start)) {
		contended = true
	}
	if contended {
		m.stats.conflicts.Inc()
	}
	m.stats.acquired.Inc()

	m.log.Debug().
		Str("path", key).
		Stringer("mode", mode).
		Stringer("state", g.state).
		Dur("wait", time.Since(start)).
		Msg("Lock acquired")
	return g, nil
}

// lockSystem takes the OS lock for g, leaving it in SystemHeld or
// SystemDegraded. It reports whether another owner held the OS lock at some
// point.
func (m *Manager) lockSystem(ctx context.Context, g *Guard, budget time.Duration) bool {
	f, err := openLockFile(g.path + LockFileSuffix)
	if err != nil {
		m.degrade(g, err)
		return false
	}

	deadline := time.Now().Add(budget)
	contended := false
	for {
		err = m.advisory.TryLock(f, g.mode == Exclusive)
		if err == nil {
			g.file = f
			g.state = StateSystemHeld
			return contended
		}
		if !errors.Is(err, ErrWouldBlock) {
			break
		}
		contended = true

		wait := min(m.pollInterval, time.Until(deadline))
		if wait <= 0 {
			err = fmt.Errorf("%w after %s", ErrWouldBlock, budget.Round(time.Millisecond))
			break
		}
		if sleepErr := sleepContext(ctx, wait); sleepErr != nil {
			err = sleepErr
			break
		}
	}

	f.Close()
	m.degrade(g, err)
	return contended
}

func (m *Manager) degrade(g *Guard, reason error) {
	g.state = StateSystemDegraded
	g.degraded = reason
	m.stats.degraded.Inc()
	m.log.Warn().
		Err(reason).
		Str("path", g.path).
		Msg("OS lock unavailable, continuing with in-process lock only")
}

func openLockFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	return f, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
