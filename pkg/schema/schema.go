// Package schema provides structural validation of dispatch data.
package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const logPrefix = "schema:schema"

// Schema checks data against a declared shape and returns the parsed data,
// with defaults applied, or an error.
type Schema interface {
	Validate(data map[string]interface{}) (map[string]interface{}, error)
}

// Func adapts a function to Schema.
type Func func(data map[string]interface{}) (map[string]interface{}, error)

// Validate implements Schema.
func (f Func) Validate(data map[string]interface{}) (map[string]interface{}, error) {
	return f(data)
}

// ValidationError reports why data did not match a schema.
type ValidationError struct {
	// Reason is a short human readable cause, e.g. "/foo: expected string, but got number".
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// JSONSchema is a Schema backed by a compiled JSON Schema document.
type JSONSchema struct {
	name     string
	compiled *jsonschema.Schema
}

// Compile compiles a JSON Schema document. name identifies the schema in
// error messages and must be unique per document.
func Compile(name, document string) (*JSONSchema, error) {
	c := jsonschema.NewCompiler()
	c.ExtractAnnotations = true

	url := name
	if !strings.Contains(url, ":") {
		url = "mem:///" + strings.TrimPrefix(name, "/") + ".json"
	}
	if err := c.AddResource(url, strings.NewReader(document)); err != nil {
		return nil, fmt.Errorf("%s - failed to add schema %s: %w", logPrefix, name, err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to compile schema %s: %w", logPrefix, name, err)
	}
	return &JSONSchema{name: name, compiled: compiled}, nil
}

// MustCompile is like Compile but panics on error. Intended for package
// level handler declarations.
func MustCompile(name, document string) *JSONSchema {
	s, err := Compile(name, document)
	if err != nil {
		panic(err)
	}
	return s
}

// Validate implements Schema. Top level properties missing from data receive
// their declared default before validation.
func (s *JSONSchema) Validate(data map[string]interface{}) (map[string]interface{}, error) {
	withDefaults := make(map[string]interface{}, len(data)+len(s.compiled.Properties))
	for k, v := range data {
		withDefaults[k] = v
	}
	for name, prop := range s.compiled.Properties {
		if _, ok := withDefaults[name]; ok || prop == nil || prop.Default == nil {
			continue
		}
		withDefaults[name] = prop.Default
	}

	parsed, err := normalize(withDefaults)
	if err != nil {
		return nil, &ValidationError{Reason: "data invalid", Err: err}
	}

	if err := s.compiled.Validate(parsed); err != nil {
		return nil, &ValidationError{Reason: reason(err), Err: err}
	}
	return parsed, nil
}

// All returns a Schema that requires data to satisfy every schema, in order.
// The parsed output of one schema is the input of the next.
func All(schemas ...Schema) Schema {
	return Func(func(data map[string]interface{}) (map[string]interface{}, error) {
		current := data
		for _, s := range schemas {
			if s == nil {
				continue
			}
			next, err := s.Validate(current)
			if err != nil {
				return nil, err
			}
			current = next
		}
		if current == nil {
			current = map[string]interface{}{}
		}
		return current, nil
	})
}

// normalize returns a deep copy of data holding only JSON native types.
// Numbers are kept as json.Number.
func normalize(data map[string]interface{}) (map[string]interface{}, error) {
	if data == nil {
		return map[string]interface{}{}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	out := map[string]interface{}{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// reason picks the most specific cause of a validation failure.
func reason(err error) string {
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return err.Error()
	}
	leaf := verr
	for len(leaf.Causes) > 0 {
		leaf = leaf.Causes[0]
	}
	if leaf.InstanceLocation == "" {
		return leaf.Message
	}
	return leaf.InstanceLocation + ": " + leaf.Message
}
