package validation

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rendis/botforge/pkg/schema"
)

// scenarioSchemaJSON is the JSON Schema for ScenarioDocument validation.
// Embedded as a constant to avoid filesystem dependencies. Kind-specific
// required fields are enforced through conditional subschemas; the
// compiler re-checks them with better error locality.
const scenarioSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://botforge.dev/schemas/scenario.json",
  "type": "object",
  "required": ["BotName", "Token", "GlobalVariables", "Nodes", "StartNodeId"],
  "properties": {
    "BotName": { "type": "string" },
    "Token": { "type": "string" },
    "GlobalVariables": {
      "type": "array",
      "items": { "type": "string" }
    },
    "Nodes": {
      "type": "array",
      "items": { "$ref": "#/$defs/node" }
    },
    "StartNodeId": { "type": "string" }
  },
  "additionalProperties": false,
  "$defs": {
    "node": {
      "type": "object",
      "required": ["id", "kind"],
      "properties": {
        "id": { "type": "string", "minLength": 1 },
        "kind": {
          "type": "string",
          "enum": ["start", "final", "message", "input", "condition", "choice", "api"]
        },
        "label": { "type": "string" },
        "text": { "type": "string" },
        "prompt": { "type": "string" },
        "variable": { "type": "string" },
        "expression": { "type": "string" },
        "options": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["id", "label"],
            "properties": {
              "id": { "type": "string", "minLength": 1 },
              "label": { "type": "string" }
            },
            "additionalProperties": false
          }
        },
        "url": { "type": "string" },
        "method": { "type": "string", "enum": ["GET", "POST", "PUT", "DELETE"] },
        "headers": {
          "type": "object",
          "additionalProperties": { "type": "string" }
        },
        "body": { "type": "string" },
        "resultVariable": { "type": "string" },
        "resultFilter": { "type": "string" },
        "retryCount": { "type": "integer", "minimum": 0 },
        "next": {
          "type": "object",
          "additionalProperties": { "type": "string" }
        }
      },
      "additionalProperties": false,
      "allOf": [
        {
          "if": { "properties": { "kind": { "const": "message" } } },
          "then": { "required": ["text"] }
        },
        {
          "if": { "properties": { "kind": { "const": "input" } } },
          "then": { "required": ["prompt", "variable"] }
        },
        {
          "if": { "properties": { "kind": { "const": "condition" } } },
          "then": { "required": ["expression"] }
        },
        {
          "if": { "properties": { "kind": { "const": "choice" } } },
          "then": { "required": ["prompt", "options"] }
        },
        {
          "if": { "properties": { "kind": { "const": "api" } } },
          "then": { "required": ["url", "method", "resultVariable"] }
        }
      ]
    }
  }
}`

var (
	scenarioSchemaOnce sync.Once
	scenarioSchema     *jsonschema.Schema
	scenarioSchemaErr  error
)

func compiledScenarioSchema() (*jsonschema.Schema, error) {
	scenarioSchemaOnce.Do(func() {
		c := jsonschema.NewCompiler()

		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(scenarioSchemaJSON))
		if err != nil {
			scenarioSchemaErr = fmt.Errorf("unmarshal scenario schema: %w", err)
			return
		}
		if err := c.AddResource("https://botforge.dev/schemas/scenario.json", doc); err != nil {
			scenarioSchemaErr = fmt.Errorf("add scenario schema resource: %w", err)
			return
		}
		scenarioSchema, scenarioSchemaErr = c.Compile("https://botforge.dev/schemas/scenario.json")
	})
	return scenarioSchema, scenarioSchemaErr
}

// ValidateDocument checks a raw scenario document against the JSON Schema
// before any decoding. A failure is a MALFORMED_DOCUMENT error; the caller
// must leave its prior graph state untouched.
func ValidateDocument(raw []byte) error {
	compiled, err := compiledScenarioSchema()
	if err != nil {
		return schema.NewError(schema.ErrCodeMalformedDocument, "scenario schema unavailable").WithCause(err)
	}

	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeMalformedDocument,
			"parse scenario JSON: %s", err.Error()).WithCause(err)
	}

	if err := compiled.Validate(instance); err != nil {
		return schema.NewErrorf(schema.ErrCodeMalformedDocument,
			"scenario document is not well-formed: %s", err.Error()).WithCause(err)
	}

	return nil
}
