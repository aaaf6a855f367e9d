package processors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/docpipe/engine/pipeline"
)

// ocrProcessor posts the input image to an HTTP OCR backend and decodes
// the recognized text from its JSON response.
type ocrProcessor struct {
	pipeline.BaseProcessor
	client  *http.Client
	url     string
	headers map[string]string
}

func newOCRProcessor(config pipeline.Config, base pipeline.BaseProcessor) *ocrProcessor {
	headers := map[string]string{}
	if raw, ok := config["headers"].(map[string]any); ok {
		for k, v := range raw {
			if s, ok := v.(string); ok {
				headers[k] = s
			}
		}
	}
	return &ocrProcessor{
		BaseProcessor: base,
		client:        &http.Client{},
		url:           config.String("url", ""),
		headers:       headers,
	}
}

func (p *ocrProcessor) ValidateConfig() error {
	if p.url == "" {
		return pipeline.NewConfigError("MISSING_URL", "ocr: url is required")
	}
	return nil
}

// ocrResponse is the expected JSON shape of the backend's response body.
type ocrResponse struct {
	Text string `json:"text"`
}

func (p *ocrProcessor) Execute(ctx context.Context, payload pipeline.Payload) pipeline.Result {
	start := time.Now()

	mimeType := http.DetectContentType(payload.FileContent)
	if !strings.HasPrefix(mimeType, "image/") {
		return pipeline.Failure(p.Name(), fmt.Sprintf("ocr: input is not an image (detected %q)", mimeType), pipeline.Metadata{PageNumber: payload.PageNumber, ParentDocumentID: payload.ParentDocumentID}, time.Since(start))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload.FileContent))
	if err != nil {
		return pipeline.Failure(p.Name(), fmt.Sprintf("build request: %v", err), pipeline.Metadata{}, time.Since(start))
	}
	req.Header.Set("Content-Type", mimeType)
	for k, v := range p.headers {
		req.Header.Set(k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return pipeline.Failure(p.Name(), fmt.Sprintf("ocr backend request failed: %v", err), pipeline.Metadata{}, time.Since(start))
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return pipeline.Failure(p.Name(), fmt.Sprintf("read ocr backend response: %v", err), pipeline.Metadata{}, time.Since(start))
	}
	if resp.StatusCode != http.StatusOK {
		return pipeline.Failure(p.Name(), fmt.Sprintf("ocr backend returned status %d: %s", resp.StatusCode, string(body)), pipeline.Metadata{}, time.Since(start))
	}

	var parsed ocrResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return pipeline.Failure(p.Name(), fmt.Sprintf("parse ocr backend response: %v", err), pipeline.Metadata{}, time.Since(start))
	}

	sr := &pipeline.StructuredResults{Text: parsed.Text}
	meta := pipeline.Metadata{PageNumber: payload.PageNumber, ParentDocumentID: payload.ParentDocumentID}
	return pipeline.Success(p.Name(), parsed.Text, sr, meta, time.Since(start))
}
