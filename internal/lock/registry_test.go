package lock

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_GetLock(t *testing.T) {
	dir := t.TempDir()
	r := NewRegistry()

	t.Run("equivalent spellings share a mutex", func(t *testing.T) {
		base := filepath.Join(dir, "classes.json")
		dotted := filepath.Join(dir, ".", "sub", "..", "classes.json")

		assert.Same(t, r.GetLock(base), r.GetLock(dotted))
	})

	t.Run("relative and absolute share a mutex", func(t *testing.T) {
		wd, err := os.Getwd()
		require.NoError(t, err)

		assert.Same(t, r.GetLock("planning.json"), r.GetLock(filepath.Join(wd, "planning.json")))
	})

	t.Run("different paths get different mutexes", func(t *testing.T) {
		a := r.GetLock(filepath.Join(dir, "a.json"))
		b := r.GetLock(filepath.Join(dir, "b.json"))

		assert.NotSame(t, a, b)
	})
}

func TestRegistry_ConcurrentGetLock(t *testing.T) {
	r := NewRegistry()
	path := filepath.Join(t.TempDir(), "encadrants.json")

	const n = 64
	got := make([]*Mutex, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i] = r.GetLock(path)
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		require.Same(t, got[0], got[i], "goroutine %d got a different mutex", i)
	}
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_NeverEvicts(t *testing.T) {
	r := NewRegistry()
	dir := t.TempDir()

	for _, name := range []string{"a.json", "b.json", "c.json", "a.json"} {
		m := r.GetLock(filepath.Join(dir, name))
		require.True(t, m.TryLock())
		m.Unlock()
	}

	assert.Equal(t, 3, r.Len())
}

func TestRegistry_Canonical(t *testing.T) {
	r := NewRegistry()

	got, err := r.Canonical("x/../y/doc.json")
	require.NoError(t, err)

	assert.True(t, filepath.IsAbs(got))
	assert.Equal(t, "doc.json", filepath.Base(got))
	assert.Equal(t, "y", filepath.Base(filepath.Dir(got)))
}
