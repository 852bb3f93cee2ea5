package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func fakeGemini(t *testing.T, modelText string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if !strings.Contains(r.URL.Path, ":generateContent") {
			t.Errorf("path = %s, want generateContent endpoint", r.URL.Path)
		}
		if r.URL.Query().Get("key") == "" {
			t.Error("api key missing from query")
		}
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Contents) != 1 || len(req.Contents[0].Parts) != 2 {
			t.Errorf("want one content with image+prompt parts, got %+v", req.Contents)
		} else if req.Contents[0].Parts[0].InlineData == nil {
			t.Error("first part must carry inline image data")
		}
		resp := map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{
					"parts": []map[string]any{{"text": modelText}},
				},
			}},
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

const goodPayload = `{
	"prescription_metadata": {"patient_name": "John Doe", "overall_confidence": 0.92},
	"medicines": [{"generic_name": "Paracetamol", "brand_name": "Dolo", "strength": "500mg", "quantity_prescribed": 10}],
	"extraction_quality": {"is_readable": true}
}`

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	return New(Config{
		APIKey:  "test-key",
		BaseURL: baseURL,
		Model:   "gemini-2.0-flash",
		Timeout: 5 * time.Second,
	}, nil)
}

func TestExtractHappyPath(t *testing.T) {
	srv := fakeGemini(t, goodPayload)
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	result, raw, err := c.Extract(context.Background(), []byte("fake-jpeg-bytes"))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(result.Medicines) != 1 || result.Medicines[0].GenericName != "Paracetamol" {
		t.Errorf("medicines = %+v, want one Paracetamol entry", result.Medicines)
	}
	if !result.Quality.Readable {
		t.Error("quality should be readable")
	}
	if result.Metadata.Confidence != 0.92 {
		t.Errorf("confidence = %v, want 0.92", result.Metadata.Confidence)
	}
	if len(raw) == 0 || !json.Valid(raw) {
		t.Error("raw payload must be valid JSON")
	}
}

func TestExtractStripsMarkdownFences(t *testing.T) {
	srv := fakeGemini(t, "```json\n"+goodPayload+"\n```")
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	result, _, err := c.Extract(context.Background(), []byte("img"))
	if err != nil {
		t.Fatalf("Extract with fenced payload: %v", err)
	}
	if len(result.Medicines) != 1 {
		t.Errorf("medicines = %d, want 1", len(result.Medicines))
	}
}

func TestExtractSanitizesModelNoise(t *testing.T) {
	noisy := `{
		"prescription_metadata": {"patient_name": "Jane", "patient_age": "58", "invented_field": true},
		"medicines": [{"generic_name": "Metformin", "quantity_prescribed": 30.0, "brand_name": null}],
		"extraction_quality": {"is_readable": true}
	}`
	srv := fakeGemini(t, noisy)
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	result, _, err := c.Extract(context.Background(), []byte("img"))
	if err != nil {
		t.Fatalf("Extract with noisy payload: %v", err)
	}
	if result.Metadata.PatientAge != 58 {
		t.Errorf("patient_age = %d, want 58", result.Metadata.PatientAge)
	}
	if result.Medicines[0].QuantityPrescribed != 30 {
		t.Errorf("quantity = %d, want 30", result.Medicines[0].QuantityPrescribed)
	}
}

func TestExtractRejectsNonJSONOutput(t *testing.T) {
	srv := fakeGemini(t, "Sorry, I cannot read this image.")
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	if _, _, err := c.Extract(context.Background(), []byte("img")); err == nil {
		t.Fatal("expected error for prose model output")
	}
}

func TestExtractRejectsSchemaViolations(t *testing.T) {
	bad := `{"medicines": [{"brand_name": "Dolo"}], "extraction_quality": {"is_readable": true}}`
	srv := fakeGemini(t, bad)
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, _, err := c.Extract(context.Background(), []byte("img"))
	if err == nil {
		t.Fatal("expected schema validation error")
	}
	if !strings.Contains(err.Error(), "schema") {
		t.Errorf("err = %v, want schema validation failure", err)
	}
}

func TestExtractSurfacesAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error": {"code": 429, "message": "quota exceeded", "status": "RESOURCE_EXHAUSTED"}}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	if _, _, err := c.Extract(context.Background(), []byte("img")); err == nil {
		t.Fatal("expected error for 429 response")
	}
}

func TestExtractHonorsContextCancellation(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	c := newTestClient(t, srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, _, err := c.Extract(ctx, []byte("img")); err == nil {
		t.Fatal("expected context deadline error")
	}
}

func TestDetectMIME(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0}
	if got := detectMIME(png); got != "image/png" {
		t.Errorf("png detected as %s", got)
	}
	if got := detectMIME([]byte{0xff, 0xd8, 0xff, 0xe0}); got != "image/jpeg" {
		t.Errorf("jpeg detected as %s", got)
	}
}
