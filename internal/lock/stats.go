package lock

import (
	"io"

	"github.com/VictoriaMetrics/metrics"
)

// Statistics counts lock activity for diagnostics. Counters never feed back
// into locking decisions.
type Statistics struct {
	set       *metrics.Set
	acquired  *metrics.Counter
	conflicts *metrics.Counter
	timeouts  *metrics.Counter
	degraded  *metrics.Counter
}

// Snapshot is a point-in-time copy of Statistics.
type Snapshot struct {
	Acquired    uint64 `json:"acquired"`
	Conflicts   uint64 `json:"conflicts"`
	Timeouts    uint64 `json:"timeouts"`
	Degraded    uint64 `json:"degraded"`
	ActiveLocks int    `json:"active_locks"`
}

// NewStatistics creates zeroed counters in their own metrics set so that
// several managers in one process do not share numbers.
func NewStatistics() *Statistics {
	set := metrics.NewSet()
	return &Statistics{
		set:       set,
		acquired:  set.NewCounter("flatstore_lock_acquired_total"),
		conflicts: set.NewCounter("flatstore_lock_conflicts_total"),
		timeouts:  set.NewCounter("flatstore_lock_timeouts_total"),
		degraded:  set.NewCounter("flatstore_lock_degraded_total"),
	}
}

// Acquired returns the number of successful acquisitions.
func (s *Statistics) Acquired() uint64 { return s.acquired.Get() }

// Conflicts returns the number of acquisitions that had to wait for another holder.
func (s *Statistics) Conflicts() uint64 { return s.conflicts.Get() }

// Timeouts returns the number of in-process lock waits that expired.
func (s *Statistics) Timeouts() uint64 { return s.timeouts.Get() }

// Degraded returns the number of guards that ran without an OS lock.
func (s *Statistics) Degraded() uint64 { return s.degraded.Get() }

// Snapshot copies the current counter values.
func (s *Statistics) Snapshot() Snapshot {
	return Snapshot{
		Acquired:  s.Acquired(),
		Conflicts: s.Conflicts(),
		Timeouts:  s.Timeouts(),
		Degraded:  s.Degraded(),
	}
}

// WritePrometheus writes the counters in Prometheus text exposition format.
func (s *Statistics) WritePrometheus(w io.Writer) {
	s.set.WritePrometheus(w)
}
