// Package integration provides a framework for integration tests.
// Integration tests run real stores against a temporary data directory,
// with the platform OS lock or an injected advisory locker.
package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tmeurs/flatstore/internal/config"
	"github.com/tmeurs/flatstore/internal/lock"
	"github.com/tmeurs/flatstore/internal/store"
)

// TestEnv holds the test environment configuration.
type TestEnv struct {
	// Config is the configuration the store was built from.
	Config *config.Config

	// DataDir is the temporary directory documents live in.
	DataDir string

	// Manager is the lock manager shared by Store.
	Manager *lock.Manager

	// Store is the document store under test.
	Store *store.Store

	// Advisory is the OS lock implementation (platform default unless overridden).
	Advisory lock.AdvisoryLocker

	// Timeout is the default timeout for operations.
	Timeout time.Duration

	// T is the testing.T instance for the current test.
	T *testing.T
}

// Option is a functional option for configuring TestEnv.
type Option func(*TestEnv)

// WithTimeout sets a custom timeout for operations.
func WithTimeout(d time.Duration) Option {
	return func(e *TestEnv) {
		e.Timeout = d
	}
}

// WithLockBudgets overrides the read and write lock budgets of the store.
func WithLockBudgets(read, write time.Duration) Option {
	return func(e *TestEnv) {
		e.Config.ReadTimeout = read
		e.Config.WriteTimeout = write
	}
}

// WithAdvisoryLocker replaces the OS lock, e.g. with lock.NopLocker to force degraded mode.
func WithAdvisoryLocker(l lock.AdvisoryLocker) Option {
	return func(e *TestEnv) {
		e.Advisory = l
	}
}

// NewTestEnv creates a new test environment for integration tests.
func NewTestEnv(t *testing.T, opts ...Option) *TestEnv {
	t.Helper()

	dir := t.TempDir()
	env := &TestEnv{
		T:        t,
		DataDir:  dir,
		Advisory: lock.DefaultAdvisoryLocker(),
		Timeout:  30 * time.Second,
		Config: &config.Config{
			DataDir:      dir,
			ReadTimeout:  config.DefaultReadTimeout,
			WriteTimeout: config.DefaultWriteTimeout,
			PollInterval: 5 * time.Millisecond,
			FileMode:     config.DefaultFileMode,
		},
	}

	for _, opt := range opts {
		opt(env)
	}

	if err := env.Config.Validate(); err != nil {
		t.Fatalf("Invalid test configuration: %v", err)
	}

	env.Store, env.Manager = env.newStore()
	return env
}

func (e *TestEnv) newStore() (*store.Store, *lock.Manager) {
	mgr := lock.NewManager(
		lock.WithAdvisoryLocker(e.Advisory),
		lock.WithPollInterval(e.Config.PollInterval),
	)
	s := store.New(
		store.WithManager(mgr),
		store.WithBaseDir(e.Config.DataDir),
		store.WithReadTimeout(e.Config.ReadTimeout),
		store.WithWriteTimeout(e.Config.WriteTimeout),
		store.WithFileMode(e.Config.FileMode),
	)
	return s, mgr
}

// NewPeer returns a store over the same data directory with its own lock
// manager and registry. Peers only exclude each other through the OS lock,
// like two processes would.
func (e *TestEnv) NewPeer() *store.Store {
	s, _ := e.newStore()
	return s
}

// Path returns the absolute path of a document in the data directory.
func (e *TestEnv) Path(name string) string {
	return filepath.Join(e.DataDir, name)
}

// Context returns a context with the configured timeout.
func (e *TestEnv) Context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), e.Timeout)
}

// RequireOSLock skips the test if the OS lock is not available.
func (e *TestEnv) RequireOSLock() {
	e.T.Helper()
	if _, ok := e.Advisory.(lock.NopLocker); ok {
		e.T.Skip("Skipping: test requires an OS advisory lock")
	}
	g, err := e.Manager.Acquire(e.Path(".probe"), time.Second, lock.Exclusive)
	if err != nil {
		e.T.Fatalf("Probe lock failed: %v", err)
	}
	defer g.Release()
	if g.Degraded() {
		e.T.Skipf("Skipping: OS lock unavailable here: %v", g.DegradedReason())
	}
}

// ReadRaw returns the bytes of a document as they are on disk.
func (e *TestEnv) ReadRaw(name string) []byte {
	e.T.Helper()
	data, err := os.ReadFile(e.Path(name))
	if err != nil {
		e.T.Fatalf("Reading %s: %v", name, err)
	}
	return data
}

// Cleanup performs cleanup after tests.
func (e *TestEnv) Cleanup() {
	e.T.Helper()
	// Stray temp files mean a write was interrupted or did not clean up.
	matches, _ := filepath.Glob(filepath.Join(e.DataDir, ".*.tmp"))
	for _, m := range matches {
		e.T.Errorf("Leftover temp file: %s", m)
	}
}

// AssertNoError fails the test if err is not nil.
func (e *TestEnv) AssertNoError(err error, msg string) {
	e.T.Helper()
	if err != nil {
		e.T.Fatalf("%s: %v", msg, err)
	}
}

// AssertError fails the test if err is nil.
func (e *TestEnv) AssertError(err error, msg string) {
	e.T.Helper()
	if err == nil {
		e.T.Fatalf("%s: expected error but got nil", msg)
	}
}

// AssertEqual fails the test if got != want.
func (e *TestEnv) AssertEqual(got, want any, msg string) {
	e.T.Helper()
	if got != want {
		e.T.Fatalf("%s: got %v, want %v", msg, got, want)
	}
}

// AssertTrue fails the test if condition is false.
func (e *TestEnv) AssertTrue(condition bool, msg string) {
	e.T.Helper()
	if !condition {
		e.T.Fatalf("%s: expected true", msg)
	}
}

// Fixture is a set of documents written before a test runs.
type Fixture struct {
	// Name is the fixture name for identification.
	Name string

	// Documents maps file names to their initial content.
	Documents map[string]store.Document

	// Raw maps file names to bytes written as-is, e.g. corrupt content.
	Raw map[string]string
}

// StandardFixtures returns a map of standard test fixtures.
func StandardFixtures() map[string]*Fixture {
	return map[string]*Fixture{
		"empty": {
			Name: "empty",
		},
		"school": {
			Name: "school",
			Documents: map[string]store.Document{
				"classes.json": []any{
					map[string]any{"id": "6A", "eleves": []any{"Alice", "Bruno"}},
					map[string]any{"id": "6B", "eleves": []any{"Chloé"}},
				},
				"encadrants.json": map[string]any{
					"Mme Durand": "ENC-01",
					"M. Noël":    "ENC-02",
				},
				"config.json": map[string]any{"jours": float64(5), "creneaux": float64(8)},
			},
		},
		"corrupt": {
			Name: "corrupt",
			Raw: map[string]string{
				"classes.json": `[{"id": "6A",`,
				"blank.json":   "  \n",
			},
		},
	}
}

// LoadFixture writes a named fixture into the data directory.
func (e *TestEnv) LoadFixture(name string) *Fixture {
	e.T.Helper()
	f, ok := StandardFixtures()[name]
	if !ok {
		e.T.Fatalf("Unknown fixture: %s", name)
	}

	for file, doc := range f.Documents {
		e.AssertNoError(e.Store.Write(file, doc), "Writing fixture "+file)
	}
	for file, raw := range f.Raw {
		e.AssertNoError(os.WriteFile(e.Path(file), []byte(raw), 0o644), "Writing fixture "+file)
	}
	return f
}

// TestRun represents a single test run for table-driven tests.
type TestRun struct {
	// Name is the test name for t.Run.
	Name string

	// Fixture is loaded before Setup (empty means none).
	Fixture string

	// Setup is called before the test.
	Setup func(*TestEnv)

	// Run is the test function.
	Run func(*TestEnv)

	// Skip is the reason to skip this test (empty means don't skip).
	Skip string
}

// RunTests runs a slice of table-driven tests.
func RunTests(t *testing.T, tests []TestRun, opts ...Option) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.Name, func(t *testing.T) {
			if tt.Skip != "" {
				t.Skip(tt.Skip)
			}

			env := NewTestEnv(t, opts...)
			defer env.Cleanup()

			if tt.Fixture != "" {
				env.LoadFixture(tt.Fixture)
			}
			if tt.Setup != nil {
				tt.Setup(env)
			}

			tt.Run(env)
		})
	}
}

// SkipIfShort skips integration tests when running with -short flag.
func SkipIfShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
}
