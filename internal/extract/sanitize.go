package extract

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// SanitizeModelJSON repairs the usual vision-model payload defects before
// schema validation:
//   - nulls and empty-string optionals are dropped
//   - quantity_prescribed and patient_age given as floats or digit strings
//     are coerced to integers
//   - unknown keys are removed (the schema sets additionalProperties: false)
//
// It returns the cleaned JSON and the list of adjustments made.
func SanitizeModelJSON(raw []byte) ([]byte, []string, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}

	adjusted := make([]string, 0, 8)

	dropNullsAndUnknown(m, topLevelKeys, &adjusted, "")

	if meta, ok := m["prescription_metadata"].(map[string]any); ok {
		dropNullsAndUnknown(meta, metadataKeys, &adjusted, "prescription_metadata.")
		coerceInt(meta, "patient_age", &adjusted)
	}
	if clinical, ok := m["clinical_analysis"].(map[string]any); ok {
		dropNullsAndUnknown(clinical, clinicalKeys, &adjusted, "clinical_analysis.")
	}
	if quality, ok := m["extraction_quality"].(map[string]any); ok {
		dropNullsAndUnknown(quality, qualityKeys, &adjusted, "extraction_quality.")
	}
	if meds, ok := m["medicines"].([]any); ok {
		for i, entry := range meds {
			med, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			prefix := fmt.Sprintf("medicines[%d].", i)
			dropNullsAndUnknown(med, medicineKeys, &adjusted, prefix)
			coerceInt(med, "quantity_prescribed", &adjusted)
		}
	}

	cleaned, err := json.Marshal(m)
	if err != nil {
		return nil, nil, fmt.Errorf("sanitize: encode: %w", err)
	}
	return cleaned, adjusted, nil
}

var (
	topLevelKeys = map[string]bool{
		"prescription_metadata": true,
		"clinical_analysis":     true,
		"medicines":             true,
		"extraction_quality":    true,
	}
	metadataKeys = map[string]bool{
		"patient_name": true, "patient_age": true, "prescriber_name": true,
		"prescription_date": true, "doctor_notes": true, "overall_confidence": true,
	}
	clinicalKeys = map[string]bool{
		"inferred_diagnosis": true, "patient_advice": true, "pharmacist_notes": true,
	}
	qualityKeys = map[string]bool{
		"is_readable": true, "missing_fields": true, "overall_suggestion": true, "error": true,
	}
	medicineKeys = map[string]bool{
		"generic_name": true, "brand_name": true, "strength": true, "form": true,
		"quantity_prescribed": true, "frequency": true, "duration": true,
		"special_instructions": true,
	}
)

func dropNullsAndUnknown(m map[string]any, known map[string]bool, adjusted *[]string, prefix string) {
	for k, v := range m {
		if !known[k] {
			delete(m, k)
			*adjusted = append(*adjusted, prefix+k+"(unknown)")
			continue
		}
		if v == nil {
			delete(m, k)
			*adjusted = append(*adjusted, prefix+k+"(null)")
			continue
		}
		if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
			delete(m, k)
			*adjusted = append(*adjusted, prefix+k+"(empty)")
		}
	}
}

func coerceInt(m map[string]any, key string, adjusted *[]string) {
	v, ok := m[key]
	if !ok {
		return
	}
	switch t := v.(type) {
	case float64:
		if t != math.Trunc(t) {
			m[key] = int(math.Round(t))
			*adjusted = append(*adjusted, key+"(rounded)")
		} else {
			m[key] = int(t)
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			m[key] = n
			*adjusted = append(*adjusted, key+"(string->int)")
		} else {
			delete(m, key)
			*adjusted = append(*adjusted, key+"(unparseable)")
		}
	}
}

// StripFences removes markdown code fences some models wrap around JSON.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
