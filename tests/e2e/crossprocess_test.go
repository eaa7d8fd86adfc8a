//go:build unix

// Package e2e provides end-to-end tests for flatstore.
// These tests run several real processes against one data directory.
package e2e

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmeurs/flatstore/internal/store"
	"github.com/tmeurs/flatstore/tests/integration"
)

const (
	helperEnv   = "FLATSTORE_E2E_HELPER"
	helperDir   = "FLATSTORE_E2E_DIR"
	helperCount = "FLATSTORE_E2E_COUNT"
)

// TestMain turns the test binary into a writer process when started by
// runWriters.
func TestMain(m *testing.M) {
	if os.Getenv(helperEnv) == "1" {
		os.Exit(writerMain())
	}
	os.Exit(m.Run())
}

func writerMain() int {
	n, err := strconv.Atoi(os.Getenv(helperCount))
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad count:", err)
		return 2
	}
	s := store.New(
		store.WithBaseDir(os.Getenv(helperDir)),
		store.WithWriteTimeout(30*time.Second),
	)
	pid := os.Getpid()
	for i := range n {
		err := s.Update("journal.json", func(doc store.Document) (store.Document, error) {
			list, ok := doc.([]any)
			if !ok {
				return nil, fmt.Errorf("expected a list, got %T", doc)
			}
			return append(list, map[string]any{"pid": pid, "i": i}), nil
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, "update:", err)
			return 1
		}
	}
	if s.Stats().Degraded > 0 {
		fmt.Fprintln(os.Stderr, "ran degraded")
		return 3
	}
	return 0
}

func runWriters(t *testing.T, dir string, procs, perProc int) {
	t.Helper()
	var wg sync.WaitGroup
	for range procs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cmd := exec.Command(os.Args[0], "-test.run=^$")
			cmd.Env = append(os.Environ(),
				helperEnv+"=1",
				helperDir+"="+dir,
				helperCount+"="+strconv.Itoa(perProc),
			)
			out, err := cmd.CombinedOutput()
			assert.NoError(t, err, "writer process output: %s", out)
		}()
	}
	wg.Wait()
}

// TestCrossProcess_NoLostUpdates runs several processes appending to the
// same document and checks every append survived.
func TestCrossProcess_NoLostUpdates(t *testing.T) {
	integration.SkipIfShort(t)

	env := integration.NewTestEnv(t, integration.WithTimeout(60*time.Second))
	defer env.Cleanup()
	env.RequireOSLock()

	const procs, perProc = 4, 25
	runWriters(t, env.DataDir, procs, perProc)

	doc, err := env.Store.Read("journal.json", []any{})
	require.NoError(t, err)
	list, ok := doc.([]any)
	require.True(t, ok, "journal should be a list, got %T", doc)
	assert.Len(t, list, procs*perProc)

	perPID := map[float64]int{}
	for _, e := range list {
		entry := e.(map[string]any)
		perPID[entry["pid"].(float64)]++
	}
	assert.Len(t, perPID, procs)
	for pid, n := range perPID {
		assert.Equal(t, perProc, n, "entries of pid %v", pid)
	}
}

// TestCrossProcess_LockFileStaysBehind checks the sibling lock file is
// left in place and the document carries no temp files.
func TestCrossProcess_LockFileStaysBehind(t *testing.T) {
	integration.SkipIfShort(t)

	env := integration.NewTestEnv(t)
	defer env.Cleanup()
	env.RequireOSLock()

	runWriters(t, env.DataDir, 2, 3)

	assert.FileExists(t, env.Path("journal.json.lock"))
	entries, err := os.ReadDir(env.DataDir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp")
	}
}
