package store

import (
	"fmt"
)

type missing struct{}

// ReadAs reads the document at path into a T. Missing, empty, corrupt or
// mis-shaped documents yield def.
func ReadAs[T any](s *Store, path string, def T) (T, error) {
	doc, err := s.Read(path, missing{})
	if err != nil {
		return def, err
	}
	if _, ok := doc.(missing); ok {
		return def, nil
	}

	var out T
	if err := convert(doc, &out); err != nil {
		s.log.Warn().Err(err).Str("path", s.Path(path)).Msg("Document has unexpected shape, using default")
		return def, nil
	}
	return out, nil
}

// UpdateAs is Update for callers that work with a concrete type. A missing
// document is presented to fn as the zero value of T.
func UpdateAs[T any](s *Store, path string, fn func(T) (T, error)) error {
	return s.Update(path, func(doc Document) (Document, error) {
		var current T
		if list, ok := doc.([]any); !ok || len(list) > 0 {
			if err := convert(doc, &current); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrCorruptDocument, err)
			}
		}
		return fn(current)
	})
}
