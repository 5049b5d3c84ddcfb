package policy

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrEmptyDocument is returned when a policy document has no content.
var ErrEmptyDocument = errors.New("policy: empty document")

// ParseError wraps a decode failure with the document source.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("policy: parse %s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// FromYAML parses a YAML policy document and resolves defaults.
func FromYAML(data []byte) (*Model, error) {
	if len(data) == 0 {
		return nil, ErrEmptyDocument
	}
	m := &Model{}
	if err := yaml.Unmarshal(data, m); err != nil {
		return nil, &ParseError{Source: "yaml", Err: err}
	}
	m.normalize()
	return m, nil
}

// FromJSON parses a JSON policy document and resolves defaults.
func FromJSON(data []byte) (*Model, error) {
	if len(data) == 0 {
		return nil, ErrEmptyDocument
	}
	m := &Model{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, &ParseError{Source: "json", Err: err}
	}
	m.normalize()
	return m, nil
}

// LoadFile reads a policy document from disk, choosing the decoder by
// file extension.
func LoadFile(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, ".json") {
		return FromJSON(data)
	}
	return FromYAML(data)
}
