package pdfform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var ErrNoExtractor = errors.New("no PDF field extractor configured")

// Extractor returns the raw AcroForm fields of a PDF.
type Extractor interface {
	Extract(ctx context.Context, filename string, pdf []byte) (map[string]any, error)
}

// New 未配置 URL 时返回 NoExtractor，此时只能依赖客户端附带的字段
func New(url string, timeout time.Duration) Extractor {
	if url == "" {
		return NoExtractor{}
	}
	return &HTTPExtractor{URL: url, Client: &http.Client{Timeout: timeout}}
}

type NoExtractor struct{}

func (NoExtractor) Extract(context.Context, string, []byte) (map[string]any, error) {
	return nil, ErrNoExtractor
}

// HTTPExtractor posts the PDF to an extraction service which answers
// {"fields": {"ITNr": "...", ...}}.
type HTTPExtractor struct {
	URL    string
	Client *http.Client
}

type extractResponse struct {
	Fields map[string]any `json:"fields"`
	Error  string         `json:"error"`
}

func (e *HTTPExtractor) Extract(ctx context.Context, filename string, pdf []byte) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.URL, bytes.NewReader(pdf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/pdf")
	req.Header.Set("X-Filename", filename)

	client := e.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", filename, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", filename, err)
	}
	var out extractResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("extract %s: status %d: invalid response", filename, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		if out.Error == "" {
			out.Error = http.StatusText(resp.StatusCode)
		}
		return nil, fmt.Errorf("extract %s: %s", filename, out.Error)
	}
	if out.Fields == nil {
		out.Fields = map[string]any{}
	}
	return out.Fields, nil
}
