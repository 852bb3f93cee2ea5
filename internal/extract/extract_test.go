package extract

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestStripFences(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"leading whitespace", "  \n```json\n{}\n```  ", `{}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := StripFences(tc.in); got != tc.want {
				t.Errorf("StripFences(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestSanitizeDropsNullsAndUnknownKeys(t *testing.T) {
	raw := []byte(`{
		"prescription_metadata": {"patient_name": "Jane", "patient_age": null, "hallucinated": "x"},
		"medicines": [{"generic_name": "Paracetamol", "brand_name": "", "quantity_prescribed": 10}],
		"extraction_quality": {"is_readable": true},
		"extra_top_level": {}
	}`)
	clean, adjusted, err := SanitizeModelJSON(raw)
	if err != nil {
		t.Fatalf("SanitizeModelJSON: %v", err)
	}
	if len(adjusted) == 0 {
		t.Fatal("expected adjustments to be recorded")
	}
	var m map[string]any
	if err := json.Unmarshal(clean, &m); err != nil {
		t.Fatalf("cleaned output is not JSON: %v", err)
	}
	if _, ok := m["extra_top_level"]; ok {
		t.Error("unknown top-level key survived sanitization")
	}
	meta := m["prescription_metadata"].(map[string]any)
	if _, ok := meta["patient_age"]; ok {
		t.Error("null patient_age survived sanitization")
	}
	if _, ok := meta["hallucinated"]; ok {
		t.Error("unknown metadata key survived sanitization")
	}
	med := m["medicines"].([]any)[0].(map[string]any)
	if _, ok := med["brand_name"]; ok {
		t.Error("empty-string brand_name survived sanitization")
	}
}

func TestSanitizeCoercesQuantities(t *testing.T) {
	raw := []byte(`{
		"prescription_metadata": {"patient_age": "42"},
		"medicines": [
			{"generic_name": "Aspirin", "quantity_prescribed": 10.0},
			{"generic_name": "Metformin", "quantity_prescribed": "30"}
		],
		"extraction_quality": {"is_readable": true}
	}`)
	clean, _, err := SanitizeModelJSON(raw)
	if err != nil {
		t.Fatalf("SanitizeModelJSON: %v", err)
	}
	var result Result
	if err := json.Unmarshal(clean, &result); err != nil {
		t.Fatalf("unmarshal cleaned output: %v", err)
	}
	if result.Metadata.PatientAge != 42 {
		t.Errorf("patient_age = %d, want 42", result.Metadata.PatientAge)
	}
	if got := result.Medicines[0].QuantityPrescribed; got != 10 {
		t.Errorf("float quantity coerced to %d, want 10", got)
	}
	if got := result.Medicines[1].QuantityPrescribed; got != 30 {
		t.Errorf("string quantity coerced to %d, want 30", got)
	}
}

func TestSanitizeRejectsNonJSON(t *testing.T) {
	if _, _, err := SanitizeModelJSON([]byte("I could not read the image")); err == nil {
		t.Fatal("expected error for non-JSON input")
	}
}

func TestSchemaAcceptsSanitizedPayload(t *testing.T) {
	raw := []byte(`{
		"prescription_metadata": {"patient_name": "Jane Doe", "overall_confidence": 0.9},
		"medicines": [{"generic_name": "Paracetamol", "strength": "500mg", "quantity_prescribed": 10}],
		"extraction_quality": {"is_readable": true, "missing_fields": []}
	}`)
	clean, _, err := SanitizeModelJSON(raw)
	if err != nil {
		t.Fatalf("SanitizeModelJSON: %v", err)
	}
	if err := ValidateJSONAgainstSchema(BuildPrescriptionJSONSchema(), clean); err != nil {
		t.Fatalf("sanitized payload should validate: %v", err)
	}
}

func TestSchemaRejectsBadPayloads(t *testing.T) {
	schema := BuildPrescriptionJSONSchema()
	cases := []struct {
		name string
		raw  string
	}{
		{"missing quality", `{"medicines": []}`},
		{"medicine without generic_name", `{"medicines": [{"brand_name": "Dolo"}], "extraction_quality": {"is_readable": true}}`},
		{"zero quantity", `{"medicines": [{"generic_name": "X", "quantity_prescribed": 0}], "extraction_quality": {"is_readable": true}}`},
		{"readable not boolean", `{"medicines": [], "extraction_quality": {"is_readable": "yes"}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := ValidateJSONAgainstSchema(schema, []byte(tc.raw)); err == nil {
				t.Errorf("expected schema rejection for %s", tc.name)
			}
		})
	}
}

func TestDegraded(t *testing.T) {
	r := Degraded(errors.New("vision service timed out"))
	if r.Quality.Readable {
		t.Error("degraded result must be unreadable")
	}
	if r.Medicines == nil || len(r.Medicines) != 0 {
		t.Error("degraded result must carry an empty, non-nil medicines slice")
	}
	if !strings.Contains(r.Quality.Error, "timed out") {
		t.Errorf("degraded error = %q, want original message preserved", r.Quality.Error)
	}

	r = Degraded(nil)
	if r.Quality.Error == "" {
		t.Error("degraded result with nil error still needs an error message")
	}
}
