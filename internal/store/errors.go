package store

import (
	"errors"
	"fmt"
)

var (
	// ErrWriteFailure marks every error produced while persisting a document.
	ErrWriteFailure = errors.New("document write failed")

	// ErrCorruptDocument is returned when a file exists but is not valid JSON.
	// Read recovers from it with the caller's default; Update does not.
	ErrCorruptDocument = errors.New("document is corrupt")

	// ErrTransform wraps errors returned by an Update transform.
	ErrTransform = errors.New("document transform failed")
)

// WriteError reports which step of an atomic write failed. The target file
// is untouched whenever a WriteError is returned.
type WriteError struct {
	Op   string
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %s: %v", e.Path, e.Op, e.Err)
}

func (e *WriteError) Is(target error) bool {
	return target == ErrWriteFailure
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
