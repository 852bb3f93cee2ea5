// Package extract defines the boundary to the external prescription-vision
// service. Implementations turn a prescription image into a structured,
// possibly-incomplete payload; callers must treat every field as untrusted.
package extract

import (
	"context"

	"medscan/internal/domain"
)

// Quality is the extractor's own readability/confidence signal.
type Quality struct {
	Readable          bool     `json:"is_readable"`
	MissingFields     []string `json:"missing_fields,omitempty"`
	OverallSuggestion string   `json:"overall_suggestion,omitempty"`
	Error             string   `json:"error,omitempty"`
}

// Result is the normalized shape we want from the vision model.
type Result struct {
	Metadata  domain.PatientMetadata     `json:"prescription_metadata"`
	Clinical  *domain.ClinicalAnalysis   `json:"clinical_analysis,omitempty"`
	Medicines []domain.ExtractedMedicine `json:"medicines"`
	Quality   Quality                    `json:"extraction_quality"`
}

// Extractor is the interface the scan pipeline depends on. The raw JSON is
// returned alongside the decoded result so it can be persisted verbatim.
type Extractor interface {
	Extract(ctx context.Context, image []byte) (Result, []byte, error)
}

// Degraded maps any adapter failure to a usable result: unreadable, no
// medicines, error recorded. Scan never fails because extraction did.
func Degraded(err error) Result {
	msg := "extraction unavailable"
	if err != nil {
		msg = err.Error()
	}
	return Result{
		Medicines: []domain.ExtractedMedicine{},
		Quality: Quality{
			Readable: false,
			Error:    msg,
		},
	}
}
