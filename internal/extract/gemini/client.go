// Package gemini calls the Google Gemini generateContent REST API to read
// prescription images. Responses are sanitized and schema-validated before
// they reach the billing pipeline.
package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"medscan/internal/extract"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com"

// Config carries the connection settings for the Gemini API.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Client is an extract.Extractor backed by the Gemini vision API.
type Client struct {
	cfg    Config
	http   *http.Client
	schema map[string]any
	log    *slog.Logger
}

// New builds a Client. BaseURL and Timeout fall back to sane defaults
// when zero.
func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		schema: extract.BuildPrescriptionJSONSchema(),
		log:    logger,
	}
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Extract sends the image to Gemini and parses the structured result.
// The second return value is the sanitized raw JSON that was validated,
// useful for caching.
func (c *Client) Extract(ctx context.Context, image []byte) (extract.Result, []byte, error) {
	start := time.Now()
	reqID := fmt.Sprintf("%d", start.UnixNano())
	log := c.log.With("req_id", reqID, "model", c.cfg.Model)

	log.Info("extract.start", "image_bytes", len(image))

	body, err := json.Marshal(generateRequest{
		Contents: []content{{
			Parts: []part{
				{InlineData: &inlineData{
					MimeType: detectMIME(image),
					Data:     base64.StdEncoding.EncodeToString(image),
				}},
				{Text: visionPrompt},
			},
		}},
	})
	if err != nil {
		return extract.Result{}, nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.Model, c.cfg.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return extract.Result{}, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		log.Error("extract.request_failed", "err", err, "elapsed_ms", time.Since(start).Milliseconds())
		return extract.Result{}, nil, fmt.Errorf("gemini request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return extract.Result{}, nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		log.Error("extract.bad_status", "status", resp.StatusCode, "elapsed_ms", time.Since(start).Milliseconds())
		return extract.Result{}, nil, fmt.Errorf("gemini status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	var gr generateResponse
	if err := json.Unmarshal(respBody, &gr); err != nil {
		return extract.Result{}, nil, fmt.Errorf("decode response: %w", err)
	}
	if gr.Error != nil {
		return extract.Result{}, nil, fmt.Errorf("gemini error %s: %s", gr.Error.Status, gr.Error.Message)
	}
	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 {
		return extract.Result{}, nil, fmt.Errorf("gemini returned no candidates")
	}

	var text strings.Builder
	for _, p := range gr.Candidates[0].Content.Parts {
		text.WriteString(p.Text)
	}

	result, raw, err := c.parse(text.String())
	if err != nil {
		log.Error("extract.parse_failed", "err", err, "elapsed_ms", time.Since(start).Milliseconds())
		return extract.Result{}, nil, err
	}

	log.Info("extract.done",
		"medicines", len(result.Medicines),
		"readable", result.Quality.Readable,
		"elapsed_ms", time.Since(start).Milliseconds())
	return result, raw, nil
}

// parse strips markdown fences, sanitizes the model output and validates
// it against the prescription schema before unmarshaling.
func (c *Client) parse(text string) (extract.Result, []byte, error) {
	stripped := extract.StripFences(text)

	clean, dropped, err := extract.SanitizeModelJSON([]byte(stripped))
	if err != nil {
		return extract.Result{}, nil, fmt.Errorf("sanitize model output: %w", err)
	}
	if len(dropped) > 0 {
		c.log.Warn("extract.sanitized", "dropped", dropped)
	}

	if err := extract.ValidateJSONAgainstSchema(c.schema, clean); err != nil {
		return extract.Result{}, nil, fmt.Errorf("model output failed schema validation: %w", err)
	}

	var result extract.Result
	if err := json.Unmarshal(clean, &result); err != nil {
		return extract.Result{}, nil, fmt.Errorf("unmarshal result: %w", err)
	}
	return result, clean, nil
}

func detectMIME(image []byte) string {
	switch {
	case len(image) >= 8 && bytes.Equal(image[:8], []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}):
		return "image/png"
	case len(image) >= 4 && bytes.Equal(image[:4], []byte{'R', 'I', 'F', 'F'}):
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
