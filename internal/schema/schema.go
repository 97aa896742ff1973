package schema

import (
	"encoding/json"
	"fmt"

	"github.com/kaptinlin/jsonschema"
)

// Schema is a compiled JSON Schema used to accept or reject payloads on
// either side of a dispatch: inbound arguments before the handler runs and
// outbound results after it returns.
type Schema struct {
	compiled *jsonschema.Schema
	raw      []byte
}

// ValidationError reports a payload rejected by a schema. It is always
// converted to a failure response at the dispatch boundary, never raised
// across it.
type ValidationError struct {
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", e.Detail)
}

// Compile compiles a JSON Schema document.
func Compile(raw []byte) (*Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiled, err := compiler.Compile(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return &Schema{compiled: compiled, raw: raw}, nil
}

// MustCompile is Compile for static schema literals; it panics on a bad
// schema, which is a programming error caught at startup.
func MustCompile(raw []byte) *Schema {
	s, err := Compile(raw)
	if err != nil {
		panic(err)
	}
	return s
}

// Validate checks value against the schema. A nil receiver is a
// pass-through: routes without a registered schema skip validation so the
// large route surface can be typed incrementally.
func (s *Schema) Validate(value any) error {
	if s == nil {
		return nil
	}
	result := s.compiled.Validate(value)
	if !result.IsValid() {
		return &ValidationError{Detail: fmt.Sprintf("%s", result.Error())}
	}
	return nil
}

// ValidateJSON decodes raw JSON and validates the decoded value. Invalid
// JSON is reported as a ValidationError rather than a decode error so
// callers see a single failure shape.
func (s *Schema) ValidateJSON(raw []byte) (any, error) {
	var value any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &value); err != nil {
			return nil, &ValidationError{Detail: fmt.Sprintf("invalid JSON: %v", err)}
		}
	}
	if err := s.Validate(value); err != nil {
		return nil, err
	}
	return value, nil
}
