package lock

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// busyLocker reports every file as locked by someone else.
type busyLocker struct {
	attempts atomic.Int32
}

func (b *busyLocker) TryLock(_ *os.File, _ bool) error {
	b.attempts.Add(1)
	return ErrWouldBlock
}

func (b *busyLocker) Unlock(_ *os.File) error { return nil }

// brokenUnlocker locks fine but fails to unlock.
type brokenUnlocker struct{}

func (brokenUnlocker) TryLock(_ *os.File, _ bool) error { return nil }

func (brokenUnlocker) Unlock(_ *os.File) error { return errors.New("unlock exploded") }

// deniedLocker fails the way a permission problem would.
type deniedLocker struct{}

func (deniedLocker) TryLock(_ *os.File, _ bool) error { return os.ErrPermission }

func (deniedLocker) Unlock(_ *os.File) error { return nil }

func TestManager_AcquireRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "classes.json")
	m := NewManager()

	g, err := m.Acquire(path, time.Second, Exclusive)
	require.NoError(t, err)

	assert.Equal(t, StateSystemHeld, g.State())
	assert.False(t, g.Degraded())
	assert.NoError(t, g.DegradedReason())
	assert.Equal(t, Exclusive, g.Mode())
	assert.FileExists(t, path+LockFileSuffix)
	assert.NoFileExists(t, path, "acquiring must not create the document")

	require.NoError(t, g.Release())
	assert.Equal(t, StateReleased, g.State())
	assert.ErrorIs(t, g.Release(), ErrReleased)

	// mutex is free again
	mu := m.Registry().GetLock(path)
	require.True(t, mu.TryLock())
	mu.Unlock()
}

func TestManager_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "planning", "config.json")
	m := NewManager()

	g, err := m.Acquire(path, time.Second, Exclusive)
	require.NoError(t, err)
	defer g.Release()

	assert.DirExists(t, filepath.Dir(path))
}

func TestManager_TimeoutBound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "classes.json")
	m := NewManager()

	holder, err := m.Acquire(path, time.Second, Exclusive)
	require.NoError(t, err)
	defer holder.Release()

	done := make(chan error, 1)
	start := time.Now()
	go func() {
		g, err := m.Acquire(path, 100*time.Millisecond, Exclusive)
		if err == nil {
			g.Release()
		}
		done <- err
	}()

	select {
	case err := <-done:
		elapsed := time.Since(start)
		require.ErrorIs(t, err, ErrLockTimeout)

		var lte *LockTimeoutError
		require.ErrorAs(t, err, &lte)
		assert.Equal(t, 100*time.Millisecond, lte.Timeout)
		assert.Equal(t, holder.Path(), lte.Path)

		assert.GreaterOrEqual(t, elapsed, 90*time.Millisecond)
		assert.Less(t, elapsed, time.Second)
	case <-time.After(5 * time.Second):
		t.Fatal("Acquire did not return within its timeout")
	}

	s := m.Stats()
	assert.Equal(t, uint64(1), s.Timeouts)
	assert.Equal(t, uint64(1), s.Acquired)
	assert.Equal(t, uint64(1), s.Conflicts)
}

func TestManager_ContextCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "classes.json")
	m := NewManager()

	holder, err := m.Acquire(path, time.Second, Exclusive)
	require.NoError(t, err)
	defer holder.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = m.AcquireContext(ctx, path, 5*time.Second, Exclusive)
	require.ErrorIs(t, err, ErrLockTimeout)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "context canceled")
}

func TestManager_WaitsForHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "classes.json")
	m := NewManager()

	holder, err := m.Acquire(path, time.Second, Exclusive)
	require.NoError(t, err)

	go func() {
		time.Sleep(50 * time.Millisecond)
		holder.Release()
	}()

	g, err := m.Acquire(path, 2*time.Second, Exclusive)
	require.NoError(t, err)
	defer g.Release()

	assert.Equal(t, StateSystemHeld, g.State())
	assert.Equal(t, uint64(1), m.Stats().Conflicts)
}

func TestManager_DegradedModes(t *testing.T) {
	tests := []struct {
		name    string
		locker  AdvisoryLocker
		wantErr error
	}{
		{name: "unsupported platform", locker: NopLocker{}, wantErr: ErrUnsupported},
		{name: "permission denied", locker: deniedLocker{}, wantErr: os.ErrPermission},
		{name: "budget exhausted", locker: &busyLocker{}, wantErr: ErrWouldBlock},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "doc.json")
			m := NewManager(
				WithAdvisoryLocker(tt.locker),
				WithPollInterval(10*time.Millisecond),
			)

			g, err := m.Acquire(path, 100*time.Millisecond, Exclusive)
			require.NoError(t, err, "degradation must not fail the acquisition")
			defer g.Release()

			assert.True(t, g.Degraded())
			assert.Equal(t, StateSystemDegraded, g.State())
			assert.ErrorIs(t, g.DegradedReason(), tt.wantErr)
			assert.Equal(t, uint64(1), m.Stats().Degraded)
			assert.Equal(t, uint64(1), m.Stats().Acquired)
		})
	}
}

func TestManager_BusyLockerPollsUntilBudget(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	busy := &busyLocker{}
	m := NewManager(WithAdvisoryLocker(busy), WithPollInterval(10*time.Millisecond))

	start := time.Now()
	g, err := m.Acquire(path, 100*time.Millisecond, Exclusive)
	require.NoError(t, err)
	defer g.Release()

	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
	assert.Greater(t, busy.attempts.Load(), int32(2))
	assert.Equal(t, uint64(1), m.Stats().Conflicts)
}

func TestManager_ReleaseUnlocksMutexWhenOSUnlockFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	m := NewManager(WithAdvisoryLocker(brokenUnlocker{}))

	g, err := m.Acquire(path, time.Second, Exclusive)
	require.NoError(t, err)
	require.Equal(t, StateSystemHeld, g.State())

	err = g.Release()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unlock exploded")

	g2, err := m.Acquire(path, 100*time.Millisecond, Exclusive)
	require.NoError(t, err, "mutex must be free after a failed OS unlock")
	g2.Release()
}

func TestManager_SerializesGoroutines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	m := NewManager()

	var inside atomic.Int32
	var maxInside atomic.Int32
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g, err := m.Acquire(path, 5*time.Second, Exclusive)
			if !assert.NoError(t, err) {
				return
			}
			n := inside.Add(1)
			if n > maxInside.Load() {
				maxInside.Store(n)
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			g.Release()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside.Load())
	assert.Equal(t, uint64(16), m.Stats().Acquired)
}

func TestManager_SharedModeStillExcludesInProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	m := NewManager()

	g, err := m.Acquire(path, time.Second, Shared)
	require.NoError(t, err)
	defer g.Release()
	assert.Equal(t, Shared, g.Mode())

	_, err = m.Acquire(path, 50*time.Millisecond, Shared)
	assert.ErrorIs(t, err, ErrLockTimeout)
}

func TestManager_DefaultTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	m := NewManager()

	g, err := m.Acquire(path, 0, Exclusive)
	require.NoError(t, err)
	g.Release()
}

func TestStatistics_WritePrometheus(t *testing.T) {
	s := NewStatistics()
	s.acquired.Inc()
	s.acquired.Inc()
	s.timeouts.Inc()

	var buf bytes.Buffer
	s.WritePrometheus(&buf)

	assert.Contains(t, buf.String(), "flatstore_lock_acquired_total 2")
	assert.Contains(t, buf.String(), "flatstore_lock_timeouts_total 1")
	assert.Equal(t, Snapshot{Acquired: 2, Timeouts: 1}, s.Snapshot())
}

func TestStatistics_IndependentSets(t *testing.T) {
	a := NewStatistics()
	b := NewStatistics()
	a.degraded.Inc()

	assert.Equal(t, uint64(1), a.Degraded())
	assert.Equal(t, uint64(0), b.Degraded())
}
