package lock

import (
	"path/filepath"

	"github.com/puzpuzpuz/xsync/v3"
)

// Registry maps canonical resource paths to their in-process Mutex.
// Entries are created on first use and live as long as the Registry; the set
// of documents is small and fixed, and evicting an entry could race with a
// guard that is about to lock it.
type Registry struct {
	locks *xsync.MapOf[string, *Mutex]
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		locks: xsync.NewMapOf[string, *Mutex](),
	}
}

// Canonical returns the identity key used for path.
func (r *Registry) Canonical(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path), err
	}
	return abs, nil
}

// GetLock returns the Mutex for path, creating it if needed.
// Equivalent spellings of the same path always yield the same Mutex.
func (r *Registry) GetLock(path string) *Mutex {
	key, _ := r.Canonical(path)
	m, _ := r.locks.LoadOrCompute(key, newMutex)
	return m
}

// Len returns the number of paths that have a lock entry.
func (r *Registry) Len() int {
	return r.locks.Size()
}
