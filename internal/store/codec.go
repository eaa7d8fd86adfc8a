package store

import (
	"bytes"

	"github.com/goccy/go-json"
)

// encode renders a document as indented UTF-8 JSON with a trailing newline.
// HTML escaping is off so names like "Dupont & fils" stay readable on disk.
func encode(v Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(data []byte) (Document, error) {
	var v Document
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// convert moves a generic document into a typed value through JSON.
func convert(doc Document, out any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
