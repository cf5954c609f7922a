package tooladapter

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ValidateArguments checks arguments against a tool's JSON-schema-shaped
// input_schema. Concrete adapters call this at the Execute boundary (spec
// §4.7: "the adapter is responsible for validation and producing
// descriptive errors").
func ValidateArguments(inputSchema, arguments json.RawMessage) error {
	if len(inputSchema) == 0 {
		return nil
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(inputSchema)); err != nil {
		return fmt.Errorf("tooladapter: invalid input schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("tooladapter: invalid input schema: %w", err)
	}
	var value any
	if len(arguments) == 0 {
		arguments = []byte("{}")
	}
	if err := json.Unmarshal(arguments, &value); err != nil {
		return fmt.Errorf("tooladapter: arguments are not valid JSON: %w", err)
	}
	if err := schema.Validate(value); err != nil {
		return fmt.Errorf("tooladapter: arguments failed schema validation: %w", err)
	}
	return nil
}
