package llm

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// enrichmentSchema constrains the shape of a model reply. Additional
// properties are allowed on purpose: keys beyond the known four are exactly
// what enrichment is for.
var enrichmentSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"vendor":   map[string]interface{}{"type": "string"},
		"currency": map[string]interface{}{"type": "string"},
		"total": map[string]interface{}{
			"type": []interface{}{"number", "string"},
		},
		"items": map[string]interface{}{
			"type": "array",
			"items": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"description": map[string]interface{}{"type": "string"},
					"price": map[string]interface{}{
						"type": []interface{}{"number", "string"},
					},
				},
			},
		},
	},
}

// ValidateEnrichmentJSON checks a model reply against the enrichment schema.
func ValidateEnrichmentJSON(data []byte) error {
	b, err := json.Marshal(enrichmentSchema)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("enrichment.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("enrichment.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal reply: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("reply does not match schema: %w", err)
	}
	return nil
}
