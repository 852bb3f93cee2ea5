package extract

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildPrescriptionJSONSchema returns the JSON-Schema the vision model's
// payload must satisfy. Kept as a generic map so it can also be embedded in
// prompts if a provider supports structured output constraints.
func BuildPrescriptionJSONSchema() map[string]any {
	medicineProps := map[string]any{
		"generic_name":         map[string]any{"type": "string", "minLength": 1},
		"brand_name":           map[string]any{"type": "string"},
		"strength":             map[string]any{"type": "string"},
		"form":                 map[string]any{"type": "string"},
		"quantity_prescribed":  map[string]any{"type": "integer", "minimum": 1},
		"frequency":            map[string]any{"type": "string"},
		"duration":             map[string]any{"type": "string"},
		"special_instructions": map[string]any{"type": "string"},
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"medicines", "extraction_quality"},
		"properties": map[string]any{
			"prescription_metadata": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"properties": map[string]any{
					"patient_name":       map[string]any{"type": "string"},
					"patient_age":        map[string]any{"type": "integer", "minimum": 0},
					"prescriber_name":    map[string]any{"type": "string"},
					"prescription_date":  map[string]any{"type": "string", "pattern": `^\d{4}-\d{2}-\d{2}$`},
					"doctor_notes":       map[string]any{"type": "string"},
					"overall_confidence": map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
				},
			},
			"clinical_analysis": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"properties": map[string]any{
					"inferred_diagnosis": map[string]any{"type": "string"},
					"patient_advice":     map[string]any{"type": "string"},
					"pharmacist_notes":   map[string]any{"type": "string"},
				},
			},
			"medicines": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"required":             []string{"generic_name"},
					"properties":           medicineProps,
				},
			},
			"extraction_quality": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"required":             []string{"is_readable"},
				"properties": map[string]any{
					"is_readable":        map[string]any{"type": "boolean"},
					"missing_fields":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"overall_suggestion": map[string]any{"type": "string"},
					"error":              map[string]any{"type": "string"},
				},
			},
		},
	}
}

// ValidateJSONAgainstSchema validates data against schemaMap.
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
