// Package store reads and writes small JSON documents kept as flat files.
//
// Every operation runs under a lock.Guard for the document path. Writes go to
// a temp file in the same directory which is then renamed over the target, so
// readers see either the old or the new document, never a partial one.
package store

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/tmeurs/flatstore/internal/lock"
)

// Document is any JSON-shaped value. Its schema belongs to the caller.
type Document = any

const (
	// DefaultReadTimeout bounds the lock wait of Read.
	DefaultReadTimeout = 5 * time.Second

	// DefaultWriteTimeout bounds the lock wait of Write and Update.
	DefaultWriteTimeout = 10 * time.Second

	// DefaultFileMode is used for documents that do not exist yet.
	DefaultFileMode os.FileMode = 0o644
)

// Store performs locked, atomic operations on JSON documents.
type Store struct {
	locks        *lock.Manager
	log          zerolog.Logger
	baseDir      string
	readTimeout  time.Duration
	writeTimeout time.Duration
	fileMode     os.FileMode
}

// Option configures a Store.
type Option func(*Store)

// WithManager sets the lock manager. Stores sharing a manager share locks.
func WithManager(m *lock.Manager) Option {
	return func(s *Store) {
		s.locks = m
	}
}

// WithLogger sets the logger for data-quality and failure events.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) {
		s.log = l
	}
}

// WithBaseDir resolves relative document paths against dir.
func WithBaseDir(dir string) Option {
	return func(s *Store) {
		s.baseDir = dir
	}
}

// WithReadTimeout sets the lock budget of Read.
func WithReadTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.readTimeout = d
		}
	}
}

// WithWriteTimeout sets the lock budget of Write and Update.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.writeTimeout = d
		}
	}
}

// WithFileMode sets the permissions of newly created documents.
func WithFileMode(mode os.FileMode) Option {
	return func(s *Store) {
		s.fileMode = mode.Perm()
	}
}

// New creates a Store. Without WithManager it gets its own lock.Manager.
func New(opts ...Option) *Store {
	s := &Store{
		log:          zerolog.Nop(),
		readTimeout:  DefaultReadTimeout,
		writeTimeout: DefaultWriteTimeout,
		fileMode:     DefaultFileMode,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.locks == nil {
		s.locks = lock.NewManager(lock.WithLogger(s.log))
	}
	return s
}

// Path returns the file path a document name resolves to.
func (s *Store) Path(name string) string {
	if s.baseDir == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(s.baseDir, name)
}

// Stats returns the lock counters of the underlying manager.
func (s *Store) Stats() lock.Snapshot {
	return s.locks.Stats()
}

// Read returns the document at path.
//
// A missing or empty file yields def and nothing is created. A file that is
// not valid JSON is logged and also yields def. Lock timeouts and other I/O
// errors are returned.
func (s *Store) Read(path string, def Document) (Document, error) {
	path = s.Path(path)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return def, nil
	}

	g, err := s.locks.Acquire(path, s.readTimeout, lock.Shared)
	if err != nil {
		return nil, err
	}
	defer g.Release()

	doc, found, err := s.readUnlocked(path)
	if err != nil {
		if errors.Is(err, ErrCorruptDocument) {
			s.log.Warn().Err(err).Str("path", path).Msg("Corrupt document, using default")
			return def, nil
		}
		return nil, err
	}
	if !found {
		return def, nil
	}
	return doc, nil
}

// Write replaces the document at path with value.
func (s *Store) Write(path string, value Document) error {
	path = s.Path(path)
	g, err := s.locks.Acquire(path, s.writeTimeout, lock.Exclusive)
	if err != nil {
		return err
	}
	defer g.Release()

	return s.writeUnlocked(path, value)
}

// Update runs a read-modify-write cycle under a single exclusive guard, so
// concurrent updates of one path never lose each other's changes.
//
// A missing file is presented to transform as an empty list. A corrupt file
// aborts the update with ErrCorruptDocument and is left as is. Errors from
// transform are wrapped in ErrTransform and nothing is written.
func (s *Store) Update(path string, transform func(Document) (Document, error)) error {
	path = s.Path(path)
	g, err := s.locks.Acquire(path, s.writeTimeout, lock.Exclusive)
	if err != nil {
		return err
	}
	defer g.Release()

	current, found, err := s.readUnlocked(path)
	if err != nil {
		s.log.Error().Err(err).Str("path", path).Msg("Update aborted")
		return err
	}
	if !found {
		current = []any{}
	}

	next, err := transform(current)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrTransform, path, err)
	}
	return s.writeUnlocked(path, next)
}

// readUnlocked loads path without locking. found is false for missing or
// empty files.
func (s *Store) readUnlocked(path string) (doc Document, found bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read %s: %w", path, err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil, false, nil
	}

	doc, err = decode(data)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %s: %v", ErrCorruptDocument, path, err)
	}
	return doc, true, nil
}

// writeUnlocked persists value without locking: encode, write a sibling temp
// file, fsync, rename. The temp file is removed on every failure.
func (s *Store) writeUnlocked(path string, value Document) error {
	data, err := encode(value)
	if err != nil {
		return s.writeFailed("encode", path, err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return s.writeFailed("create directory", path, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return s.writeFailed("create temp file", path, err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath) //nolint:errcheck // best effort cleanup
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return s.writeFailed("write temp file", path, err)
	}
	if err := tmp.Sync(); err != nil {
		return s.writeFailed("sync temp file", path, err)
	}
	if err := tmp.Chmod(s.modeFor(path)); err != nil {
		s.log.Debug().Err(err).Str("path", tmpPath).Msg("Could not set temp file mode")
	}
	if err := tmp.Close(); err != nil {
		return s.writeFailed("close temp file", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return s.writeFailed("rename", path, err)
	}
	committed = true

	syncDir(dir)
	s.log.Debug().Str("path", path).Int("bytes", len(data)).Msg("Document written")
	return nil
}

func (s *Store) writeFailed(op, path string, err error) error {
	werr := &WriteError{Op: op, Path: path, Err: err}
	s.log.Error().Err(err).Str("path", path).Str("op", op).Msg("Document write failed")
	return werr
}

// modeFor keeps the permissions of an existing document.
func (s *Store) modeFor(path string) os.FileMode {
	if info, err := os.Stat(path); err == nil {
		return info.Mode().Perm()
	}
	return s.fileMode
}

// syncDir flushes the directory entry of a rename. Platforms that cannot
// open directories are ignored.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	d.Sync() //nolint:errcheck // not supported everywhere
	d.Close()
}
