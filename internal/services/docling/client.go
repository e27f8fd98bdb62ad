// Package docling wraps the document conversion engine's HTTP API.
package docling

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBaseURL     = "http://127.0.0.1:5001"
	defaultHTTPTimeout = 30 * time.Minute
)

// Export format identifiers accepted by the engine.
const (
	FormatJSON     = "json"
	FormatMarkdown = "md"
	FormatDoctags  = "doctags"
)

// Client wraps the conversion engine API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option customizes the engine client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout overrides the default request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// NewClient constructs a conversion engine client.
func NewClient(baseURL string, opts ...Option) *Client {
	client := &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	if trimmed := strings.TrimSpace(baseURL); trimmed != "" {
		client.baseURL = strings.TrimRight(trimmed, "/")
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// ConvertOptions selects export formats and engine features for one file.
type ConvertOptions struct {
	// Formats lists the requested export formats; empty requests doctags
	// only.
	Formats []string
	// OCR enables optical character recognition on scanned pages.
	OCR bool
	// UseGPU asks the engine to run OCR on its GPU accelerator.
	UseGPU bool
	// ThreadCount caps engine parallelism for this request. Zero leaves the
	// engine default.
	ThreadCount int
}

// Document carries the converted content returned by the engine.
type Document struct {
	Filename       string          `json:"filename"`
	MarkdownText   string          `json:"md_content"`
	DoctagsText    string          `json:"doctags_content"`
	JSONContent    json.RawMessage `json:"json_content"`
	PageCount      int             `json:"page_count"`
	Title          string          `json:"title"`
	ProcessingTime float64         `json:"processing_time"`
}

// ConvertResult is the engine's response for one conversion request.
type ConvertResult struct {
	Status   string   `json:"status"`
	Document Document `json:"document"`
	Errors   []string `json:"errors"`
}

// Succeeded reports whether the engine fully converted the file.
func (r ConvertResult) Succeeded() bool {
	return r.Status == "success"
}

// PartiallySucceeded reports whether the engine converted only part of the
// file. Partial output is counted but never indexed.
func (r ConvertResult) PartiallySucceeded() bool {
	return r.Status == "partial_success"
}

// ConvertFile uploads one file and returns its converted document.
func (c *Client) ConvertFile(ctx context.Context, path string, opts ConvertOptions) (ConvertResult, error) {
	var empty ConvertResult
	file, err := os.Open(path)
	if err != nil {
		return empty, fmt.Errorf("docling convert: open %s: %w", path, err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("files", filepath.Base(path))
	if err != nil {
		return empty, fmt.Errorf("docling convert: multipart: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return empty, fmt.Errorf("docling convert: copy %s: %w", path, err)
	}
	formats := opts.Formats
	if len(formats) == 0 {
		formats = []string{FormatDoctags}
	}
	for _, format := range formats {
		if err := writer.WriteField("to_formats", format); err != nil {
			return empty, fmt.Errorf("docling convert: form field: %w", err)
		}
	}
	if err := writer.WriteField("do_ocr", strconv.FormatBool(opts.OCR)); err != nil {
		return empty, fmt.Errorf("docling convert: form field: %w", err)
	}
	if err := writer.WriteField("use_gpu", strconv.FormatBool(opts.UseGPU)); err != nil {
		return empty, fmt.Errorf("docling convert: form field: %w", err)
	}
	if opts.ThreadCount > 0 {
		if err := writer.WriteField("num_threads", strconv.Itoa(opts.ThreadCount)); err != nil {
			return empty, fmt.Errorf("docling convert: form field: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return empty, fmt.Errorf("docling convert: finalize form: %w", err)
	}

	endpoint, err := url.JoinPath(c.baseURL, "/v1alpha/convert/file")
	if err != nil {
		return empty, fmt.Errorf("docling convert: build url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return empty, fmt.Errorf("docling convert: request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return empty, fmt.Errorf("docling convert: request failed: %w", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return empty, fmt.Errorf("docling convert: read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return empty, fmt.Errorf("docling convert: http %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	var result ConvertResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return empty, fmt.Errorf("docling convert: decode response: %w", err)
	}
	if result.Status == "" {
		return empty, errors.New("docling convert: response missing status")
	}
	return result, nil
}

// Health probes the engine's readiness endpoint.
func (c *Client) Health(ctx context.Context) error {
	endpoint, err := url.JoinPath(c.baseURL, "/health")
	if err != nil {
		return fmt.Errorf("docling health: build url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("docling health: request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("docling health: request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("docling health: http %d", resp.StatusCode)
	}
	return nil
}
