package actor

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// SchemaValidator validates Request/Response payloads and actor start
// parameters against a JSON schema. This file supplies the concrete
// default backed by github.com/santhosh-tekuri/jsonschema/v5 so
// Container.Start and Container.Send have something to call without
// every caller needing to wire their own.
type SchemaValidator interface {
	// Validate reports a descriptive error if v does not satisfy the
	// schema registered under name. A validator with no schema
	// registered under name allows anything.
	Validate(name string, v any) error
}

// jsonSchemaValidator implements SchemaValidator with compiled
// santhosh-tekuri/jsonschema/v5 schemas, keyed by name ("request",
// "response", "startParams", or a caller-supplied actor name).
type jsonSchemaValidator struct {
	schemas map[string]*jsonschema.Schema
}

// NewSchemaValidator compiles the given name->schema-document map ahead
// of time. Schema documents are plain JSON Schema Draft 7 text, decoded
// with encoding/json before compilation.
func NewSchemaValidator(docs map[string]string) (SchemaValidator, error) {
	v := &jsonSchemaValidator{schemas: make(map[string]*jsonschema.Schema, len(docs))}
	c := jsonschema.NewCompiler()
	for name, doc := range docs {
		var raw any
		if err := json.Unmarshal([]byte(doc), &raw); err != nil {
			return nil, fmt.Errorf("actor: schema %q: %w", name, err)
		}
		res := "mem://" + name + ".json"
		if err := c.AddResource(res, bytes.NewReader([]byte(doc))); err != nil {
			return nil, fmt.Errorf("actor: schema %q: %w", name, err)
		}
		schema, err := c.Compile(res)
		if err != nil {
			return nil, fmt.Errorf("actor: schema %q: %w", name, err)
		}
		v.schemas[name] = schema
	}
	return v, nil
}

func (v *jsonSchemaValidator) Validate(name string, val any) error {
	schema, ok := v.schemas[name]
	if !ok {
		return nil
	}
	b, err := json.Marshal(val)
	if err != nil {
		return err
	}
	var decoded any
	if err := json.Unmarshal(b, &decoded); err != nil {
		return err
	}
	return schema.Validate(decoded)
}

// noopValidator allows everything. It is not the container default:
// NewContainer uses defaultValidator unless Set("schemaValidator", ...)
// replaces it.
type noopValidator struct{}

func (noopValidator) Validate(string, any) error { return nil }

// Embedded schema documents for the three JSON shapes a container
// validates against: outbound/inbound requests, responses, and
// Start's params argument. Request/Response are validated against the
// Go struct's own encoding/json field names (ID, From, To, ...), since
// that is the shape Validate actually marshals; startParams is
// validated against the lowercase option names Start/Set already use
// ("ip", "discoveryAddr", "discoveryPort", "stats"); stats is the
// string enum "on"/"off", not a bool, matching the documented external
// parameter shape.
const (
	requestSchemaDoc = `{
		"type": "object",
		"required": ["ID", "To", "Date", "Timeout"],
		"properties": {
			"ID": {"type": "string", "minLength": 1},
			"From": {"type": "string"},
			"To": {"type": "string", "minLength": 1},
			"Headers": {"type": ["object", "null"]},
			"Date": {"type": "integer"},
			"Timeout": {"type": "integer", "exclusiveMinimum": 0},
			"CB": {"type": "boolean"}
		}
	}`

	responseSchemaDoc = `{
		"type": "object",
		"required": ["ID", "To", "Date"],
		"properties": {
			"ID": {"type": "string", "minLength": 1},
			"From": {"type": "string"},
			"To": {"type": "string"},
			"Err": {"type": ["object", "null"]},
			"Headers": {"type": ["object", "null"]},
			"Date": {"type": "integer"}
		}
	}`

	startParamsSchemaDoc = `{
		"type": "object",
		"additionalProperties": false,
		"properties": {
			"ip": {"type": "string"},
			"discoveryAddr": {"type": "string"},
			"discoveryPort": {"type": "integer"},
			"stats": {"type": "string", "enum": ["on", "off"]}
		}
	}`
)

// newDefaultValidator compiles the embedded schemas once. A failure here
// means one of the doc constants above is malformed, a code defect
// rather than bad runtime input, so it panics rather than degrading to
// noopValidator.
func newDefaultValidator() SchemaValidator {
	v, err := NewSchemaValidator(map[string]string{
		"request":     requestSchemaDoc,
		"response":    responseSchemaDoc,
		"startParams": startParamsSchemaDoc,
	})
	if err != nil {
		panic("actor: embedded schema compile failed: " + err.Error())
	}
	return v
}

var defaultValidator = newDefaultValidator()
