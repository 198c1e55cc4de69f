package vendoradapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"clinical-annotation-eval/harness/internal/config"
)

// HTTPAnnotationAdapter implements AnnotationAdapter against a JSON-over-HTTP endpoint.
type HTTPAnnotationAdapter struct {
	URL        string
	VarName    string
	HTTPClient *http.Client
}

// NewHTTPAnnotationAdapter creates an adapter for the configured endpoint.
// No retries are attempted; a zero timeout means requests wait indefinitely.
func NewHTTPAnnotationAdapter(cfg config.AnnotatorConfig) *HTTPAnnotationAdapter {
	return &HTTPAnnotationAdapter{
		URL:        cfg.URL(),
		VarName:    cfg.VarName,
		HTTPClient: &http.Client{Timeout: cfg.Timeout()},
	}
}

type textPayload struct {
	Text string `json:"text"`
}

// Annotate posts {<VarName>: {"text": text}} and decodes the annotations.
func (a *HTTPAnnotationAdapter) Annotate(ctx context.Context, text string) ([]Annotation, json.RawMessage, error) {
	if a.HTTPClient == nil {
		return nil, nil, fmt.Errorf("HTTPAnnotationAdapter: HTTPClient is not initialized")
	}

	body, err := json.Marshal(map[string]textPayload{a.VarName: {Text: text}})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode annotation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.URL, bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create annotation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	startTime := time.Now()
	httpResp, err := a.HTTPClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to send request to %s: %w", a.URL, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read annotation response body: %w", err)
	}
	slog.Debug("annotation call completed", "url", a.URL, "status", httpResp.StatusCode, "latency", time.Since(startTime))

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, respBody, fmt.Errorf("annotation request failed with status %s: %s", httpResp.Status, respBody)
	}

	annotations, err := DecodeAnnotationResponse(respBody)
	if err != nil {
		return nil, respBody, fmt.Errorf("failed to parse annotation response: %w. Response: %s", err, respBody)
	}
	return annotations, json.RawMessage(respBody), nil
}
