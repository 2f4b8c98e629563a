package functiontool

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// generateSchema reflects the Args struct into a JSON-schema object shaped
// for model consumption: inline definitions, no $schema or $id, required
// fields taken from jsonschema tags.
func generateSchema[Args any]() (map[string]any, error) {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}

	schema := reflector.Reflect(new(Args))

	schemaMap, err := schemaToMap(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to convert schema to map: %w", err)
	}

	if schemaMap["type"] == "object" {
		result := map[string]any{
			"type":       "object",
			"properties": schemaMap["properties"],
		}
		if required := schemaMap["required"]; required != nil {
			result["required"] = required
		}
		if addProps, ok := schemaMap["additionalProperties"]; ok {
			result["additionalProperties"] = addProps
		}
		return result, nil
	}

	return schemaMap, nil
}

// schemaToMap converts via a JSON round trip so every jsonschema type ends
// up as plain maps and slices.
func schemaToMap(schema *jsonschema.Schema) (map[string]any, error) {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	delete(result, "$schema")
	delete(result, "$id")
	return result, nil
}
