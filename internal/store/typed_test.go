package store

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type class struct {
	ID  int    `json:"id"`
	Nom string `json:"nom"`
}

func TestReadAs(t *testing.T) {
	dir := t.TempDir()
	s := New(WithBaseDir(dir))

	t.Run("missing file yields default", func(t *testing.T) {
		got, err := ReadAs(s, "missing.json", []class{{ID: 9}})
		require.NoError(t, err)
		assert.Equal(t, []class{{ID: 9}}, got)
	})

	t.Run("decodes records", func(t *testing.T) {
		require.NoError(t, s.Write("classes.json", []class{{ID: 1, Nom: "A"}, {ID: 2, Nom: "B"}}))

		got, err := ReadAs[[]class](s, "classes.json", nil)
		require.NoError(t, err)
		assert.Equal(t, []class{{ID: 1, Nom: "A"}, {ID: 2, Nom: "B"}}, got)
	})

	t.Run("wrong shape yields default", func(t *testing.T) {
		require.NoError(t, s.Write("map.json", map[string]any{"a": "b"}))

		got, err := ReadAs(s, "map.json", []class{})
		require.NoError(t, err)
		assert.Equal(t, []class{}, got)
	})

	t.Run("corrupt file yields default", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{oops"), 0o644))

		got, err := ReadAs(s, "bad.json", map[string]string{"fallback": "yes"})
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"fallback": "yes"}, got)
	})
}

func TestUpdateAs(t *testing.T) {
	dir := t.TempDir()
	s := New(WithBaseDir(dir))

	t.Run("missing file starts at zero value", func(t *testing.T) {
		err := UpdateAs(s, "encadrants.json", func(m map[string]string) (map[string]string, error) {
			assert.Nil(t, m)
			return map[string]string{"Mme Durand": "E1"}, nil
		})
		require.NoError(t, err)

		got, err := ReadAs[map[string]string](s, "encadrants.json", nil)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"Mme Durand": "E1"}, got)
	})

	t.Run("concurrent typed appends", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := range 20 {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				err := UpdateAs(s, "classes.json", func(cs []class) ([]class, error) {
					return append(cs, class{ID: i, Nom: "C"}), nil
				})
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		got, err := ReadAs[[]class](s, "classes.json", nil)
		require.NoError(t, err)
		assert.Len(t, got, 20)
	})

	t.Run("mismatched document is reported as corrupt", func(t *testing.T) {
		require.NoError(t, s.Write("config.json", map[string]any{"k": "v"}))

		err := UpdateAs(s, "config.json", func(cs []class) ([]class, error) {
			return cs, nil
		})
		assert.ErrorIs(t, err, ErrCorruptDocument)
		assert.ErrorIs(t, err, ErrTransform)
	})
}
