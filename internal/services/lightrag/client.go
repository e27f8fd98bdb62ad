// Package lightrag wraps the retrieval index server's HTTP API.
package lightrag

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultBaseURL     = "http://127.0.0.1:9621"
	defaultHTTPTimeout = 10 * time.Minute
)

// Client wraps the index server API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option customizes the index client.
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

// NewClient constructs an index client. The API key is optional and sent as
// the X-API-Key header when present.
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	client := &Client{
		baseURL:    defaultBaseURL,
		apiKey:     strings.TrimSpace(apiKey),
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

type insertTextsRequest struct {
	Texts       []string `json:"texts"`
	FileSources []string `json:"file_sources,omitempty"`
	IDs         []string `json:"ids,omitempty"`
}

type serverResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// InsertTexts indexes a batch of documents. Texts, file sources, and ids
// are parallel slices; the ids become the index's document identifiers.
func (c *Client) InsertTexts(ctx context.Context, texts, fileSources, ids []string) error {
	if len(texts) == 0 {
		return errors.New("lightrag insert: at least one text required")
	}
	if len(fileSources) > 0 && len(fileSources) != len(texts) {
		return errors.New("lightrag insert: file sources must match texts")
	}
	if len(ids) > 0 && len(ids) != len(texts) {
		return errors.New("lightrag insert: ids must match texts")
	}
	encoded, err := json.Marshal(insertTextsRequest{Texts: texts, FileSources: fileSources, IDs: ids})
	if err != nil {
		return fmt.Errorf("lightrag insert: encode request: %w", err)
	}
	endpoint, err := url.JoinPath(c.baseURL, "/documents/texts")
	if err != nil {
		return fmt.Errorf("lightrag insert: build url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("lightrag insert: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("lightrag insert: request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("lightrag insert: read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("lightrag insert: http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var parsed serverResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return fmt.Errorf("lightrag insert: decode response: %w", err)
	}
	if parsed.Status != "" && parsed.Status != "success" {
		return fmt.Errorf("lightrag insert: server status %q: %s", parsed.Status, parsed.Message)
	}
	return nil
}

// FlushPipeline asks the server to finalize any buffered index writes.
func (c *Client) FlushPipeline(ctx context.Context) error {
	endpoint, err := url.JoinPath(c.baseURL, "/documents/pipeline_status")
	if err != nil {
		return fmt.Errorf("lightrag flush: build url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("lightrag flush: request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("lightrag flush: request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("lightrag flush: http %d", resp.StatusCode)
	}
	return nil
}

// Health probes the index server's readiness endpoint.
func (c *Client) Health(ctx context.Context) error {
	endpoint, err := url.JoinPath(c.baseURL, "/health")
	if err != nil {
		return fmt.Errorf("lightrag health: build url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("lightrag health: request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("lightrag health: request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("lightrag health: http %d", resp.StatusCode)
	}
	return nil
}
