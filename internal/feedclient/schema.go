package feedclient

import (
	"bytes"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const frameSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["type"],
  "properties": {
    "type": {"enum": ["ready", "activity", "heartbeat", "error"]},
    "data": {
      "type": "object",
      "required": ["id", "type"],
      "properties": {
        "id": {"type": "string", "minLength": 1},
        "type": {"type": "string", "minLength": 1},
        "ts": {"type": "string"},
        "tenant_id": {"type": "string"},
        "priority": {"type": "string"},
        "details": {"type": "object"},
        "ai": {"type": "object"}
      }
    },
    "message": {"type": "string"}
  },
  "if": {"properties": {"type": {"const": "activity"}}},
  "then": {"required": ["type", "data"]}
}`

func compileFrameSchema() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(frameSchemaJSON))
	if err != nil {
		return nil, err
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("frame.json", doc); err != nil {
		return nil, err
	}
	return compiler.Compile("frame.json")
}

func validateFrame(schema *jsonschema.Schema, raw []byte) error {
	value, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return err
	}
	return schema.Validate(value)
}
