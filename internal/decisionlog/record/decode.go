package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaURL = "https://aidecisionlog.local/schemas/decision.schema.json"

const inputSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["agent_id", "action", "reason"],
  "properties": {
    "agent_id":  {"type": "string"},
    "action":    {"type": "string"},
    "reason":    {"type": "string"},
    "timestamp": {"type": ["string", "null"]}
  },
  "additionalProperties": false
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource(schemaURL, strings.NewReader(inputSchema)); err != nil {
			schemaErr = fmt.Errorf("decision schema load: %w", err)
			return
		}
		schema, schemaErr = c.Compile(schemaURL)
	})
	return schema, schemaErr
}

// Decode parses a JSON decision body and checks its shape. Field presence
// and types are checked here; emptiness is checked by New.
func Decode(body []byte) (Input, error) {
	var generic any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return Input{}, fmt.Errorf("%w: %v", ErrNotJSON, err)
	}
	var extra any
	if err := dec.Decode(&extra); err != io.EOF {
		return Input{}, fmt.Errorf("%w: trailing data after the decision object", ErrNotJSON)
	}

	s, err := compiledSchema()
	if err != nil {
		return Input{}, err
	}
	if err := s.Validate(generic); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return Input{}, fromSchemaError(ve)
		}
		return Input{}, &ValidationError{Problem: err.Error(), Err: ErrInvalidShape}
	}

	var in Input
	if err := json.Unmarshal(body, &in); err != nil {
		return Input{}, &ValidationError{Problem: err.Error(), Err: ErrInvalidShape}
	}
	return in, nil
}

// fromSchemaError reports the deepest cause, which names the offending field.
func fromSchemaError(ve *jsonschema.ValidationError) *ValidationError {
	leaf := ve
	for len(leaf.Causes) > 0 {
		leaf = leaf.Causes[0]
	}

	out := &ValidationError{
		Field:   strings.TrimPrefix(leaf.InstanceLocation, "/"),
		Problem: leaf.Message,
		Err:     ErrInvalidShape,
	}
	if strings.HasPrefix(leaf.Message, "missing properties") {
		out.Err = ErrMissingField
	}
	return out
}
