package cli

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/tmeurs/flatstore/internal/store"
)

var (
	errWrongShape  = errors.New("document has the wrong shape")
	errKeyNotFound = errors.New("key not found")
)

// parseJSONArg decodes a JSON value given on the command line.
func parseJSONArg(raw string) (store.Document, error) {
	var v store.Document
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("invalid JSON value %q: %w", raw, err)
	}
	return v, nil
}

// kind names the JSON type of a decoded document.
func kind(doc store.Document) string {
	switch doc.(type) {
	case nil:
		return "null"
	case []any:
		return "list"
	case map[string]any:
		return "object"
	case string:
		return "string"
	case float64, json.Number:
		return "number"
	case bool:
		return "boolean"
	default:
		return fmt.Sprintf("%T", doc)
	}
}

// asObject accepts a JSON object, or the empty list a missing file starts as.
func asObject(doc store.Document) (map[string]any, error) {
	switch v := doc.(type) {
	case map[string]any:
		return v, nil
	case []any:
		if len(v) == 0 {
			return map[string]any{}, nil
		}
	}
	return nil, fmt.Errorf("%w: expected an object, document is a %s", errWrongShape, kind(doc))
}

func appendValue(value store.Document) func(store.Document) (store.Document, error) {
	return func(doc store.Document) (store.Document, error) {
		list, ok := doc.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: expected a list, document is a %s", errWrongShape, kind(doc))
		}
		return append(list, value), nil
	}
}

func setKey(key string, value store.Document) func(store.Document) (store.Document, error) {
	return func(doc store.Document) (store.Document, error) {
		obj, err := asObject(doc)
		if err != nil {
			return nil, err
		}
		obj[key] = value
		return obj, nil
	}
}

func deleteKey(key string) func(store.Document) (store.Document, error) {
	return func(doc store.Document) (store.Document, error) {
		obj, err := asObject(doc)
		if err != nil {
			return nil, err
		}
		if _, ok := obj[key]; !ok {
			return nil, fmt.Errorf("%w: %q", errKeyNotFound, key)
		}
		delete(obj, key)
		return obj, nil
	}
}
