package schema

import (
	"bytes"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Validator checks schemas and instances against JSON Schema semantics.
type Validator interface {
	// ValidateSchema reports whether n is itself a valid schema.
	ValidateSchema(n *Node) error
	// ValidateInstance checks a decoded JSON value (maps, slices, numbers,
	// strings, bools, nil) against n.
	ValidateInstance(n *Node, value any) error
}

// Draft07Validator validates with Draft-07 as the default draft.
// Schemas that declare another $schema are checked with that draft.
type Draft07Validator struct{}

// NewDraft07Validator creates a Draft-07 validator.
func NewDraft07Validator() *Draft07Validator {
	return &Draft07Validator{}
}

// ValidateSchema compiles n, which checks it against the draft metaschema.
func (v *Draft07Validator) ValidateSchema(n *Node) error {
	_, err := v.compile(n)
	return err
}

// ValidateInstance compiles n and validates value against it.
func (v *Draft07Validator) ValidateInstance(n *Node, value any) error {
	compiled, err := v.compile(n)
	if err != nil {
		return err
	}
	if err := compiled.Validate(value); err != nil {
		return fmt.Errorf("instance does not match schema: %w", err)
	}
	return nil
}

// ValidateJSON decodes data and validates it against n.
func (v *Draft07Validator) ValidateJSON(n *Node, data []byte) error {
	var value any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&value); err != nil {
		return fmt.Errorf("decode instance: %w", err)
	}
	return v.ValidateInstance(n, value)
}

func (v *Draft07Validator) compile(n *Node) (*jsonschema.Schema, error) {
	if n == nil {
		return nil, fmt.Errorf("schema is nil")
	}
	raw, err := n.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}
	const url = "mem:schema.json"

	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft7
	if err := c.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	return compiled, nil
}

var _ Validator = (*Draft07Validator)(nil)
