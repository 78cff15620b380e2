package config

import (
	"bytes"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Decode strictly decodes a YAML document from r into v: unknown fields
// anywhere in the document are a hard error, matching "unknown fields
// are rejected" in the data model invariants.
func Decode(r io.Reader, v any) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil {
		if err == io.EOF {
			return nil
		}
		return &ParseError{Err: fmt.Errorf("invalid YAML: %w", err)}
	}
	return nil
}

// DecodeBytes is Decode over an in-memory document; an empty document
// decodes to v's zero value (not an error).
func DecodeBytes(contents []byte, v any) error {
	if len(bytes.TrimSpace(contents)) == 0 {
		return nil
	}
	return Decode(bytes.NewReader(contents), v)
}

// parseProjectConfig decodes and schema-validates a ProjectConfig
// document. It neither runs the semantic Validate checks nor applies
// the format_version migration — LoadProjectConfig in load.go does both.
func parseProjectConfig(contents []byte) (*ProjectConfig, error) {
	cfg := NewProjectConfig()
	if err := DecodeBytes(contents, &cfg); err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(contents)) > 0 {
		if err := ValidateYAML(contents); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

// parseTreeConfig decodes and schema-validates a bare TreeConfig
// document (LoadTreeConfig runs the semantic Validate checks afterwards) (used for the index tree, which carries no
// format_version / default_repo / cache fields of its own).
func parseTreeConfig(contents []byte) (*TreeConfig, error) {
	cfg := NewTreeConfig()
	if err := DecodeBytes(contents, &cfg); err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(contents)) > 0 {
		if err := ValidateYAML(contents); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

// Marshal serializes v (a TreeConfig or ProjectConfig) back to YAML.
func Marshal(v any) ([]byte, error) {
	return yaml.Marshal(v)
}
