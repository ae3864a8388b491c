// Copyright OGC Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/invopop/jsonschema"
	schemavalidator "github.com/santhosh-tekuri/jsonschema/v5"
)

// Descriptor is the capability descriptor of a backend kind: its name and
// the JSON schema that the choice parameters of a configuration must
// satisfy before construction is attempted.
type Descriptor struct {
	Kind        string          `json:"kind"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Schema      json.RawMessage `json:"schema"`

	compiled *schemavalidator.Schema
}

// NewDescriptor reflects the JSON schema of params, a backend's parameter
// struct, and compiles it for validation. It panics if the schema cannot
// be compiled, which can only happen for a broken parameter type.
func NewDescriptor(kind, title string, params any) *Descriptor {
	r := &jsonschema.Reflector{
		ExpandedStruct: true,
		DoNotReference: true,
		Anonymous:      true,
	}
	s := r.Reflect(params)
	s.Title = title

	raw, err := json.Marshal(s)
	if err != nil {
		panic(fmt.Sprintf("provider: marshal %s schema: %v", kind, err))
	}
	compiled, err := schemavalidator.CompileString(kind+".schema.json", string(raw))
	if err != nil {
		panic(fmt.Sprintf("provider: compile %s schema: %v", kind, err))
	}

	return &Descriptor{
		Kind:     kind,
		Title:    title,
		Schema:   raw,
		compiled: compiled,
	}
}

// WithDescription returns the descriptor with a human readable summary.
func (d *Descriptor) WithDescription(text string) *Descriptor {
	d.Description = text
	return d
}

// Validate checks choice parameters against the schema.
func (d *Descriptor) Validate(params map[string]any) error {
	if params == nil {
		params = map[string]any{}
	}
	doc, err := jsonDocument(params)
	if err != nil {
		return &InvalidConfigError{Kind: d.Kind, Reason: err.Error()}
	}
	if err := d.compiled.Validate(doc); err != nil {
		var ve *schemavalidator.ValidationError
		if errors.As(err, &ve) {
			return &InvalidConfigError{Kind: d.Kind, Reason: validationReason(ve)}
		}
		return &InvalidConfigError{Kind: d.Kind, Reason: err.Error()}
	}
	return nil
}

// jsonDocument turns YAML- or JSON-decoded parameters into the value
// model the validator expects (json.Number for numbers).
func jsonDocument(params map[string]any) (any, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode parameters: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode parameters: %w", err)
	}
	return doc, nil
}

// validationReason flattens the innermost causes into one line.
func validationReason(ve *schemavalidator.ValidationError) string {
	if len(ve.Causes) == 0 {
		loc := ve.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		return fmt.Sprintf("%s: %s", loc, ve.Message)
	}
	var out string
	for i, c := range ve.Causes {
		if i > 0 {
			out += "; "
		}
		out += validationReason(c)
	}
	return out
}
