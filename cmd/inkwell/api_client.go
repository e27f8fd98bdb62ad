package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// apiClient is a thin wrapper over the daemon's HTTP API.
type apiClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func newAPIClient(addr, token string) *apiClient {
	base := strings.TrimSpace(addr)
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &apiClient{
		baseURL:    strings.TrimRight(base, "/"),
		token:      strings.TrimSpace(token),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type submitResponse struct {
	TaskID string `json:"task_id"`
	Path   string `json:"path,omitempty"`
}

type taskStatus struct {
	ID          string          `json:"id"`
	Kind        string          `json:"kind"`
	Queue       string          `json:"queue"`
	State       string          `json:"state"`
	Result      json.RawMessage `json:"result,omitempty"`
	LastError   string          `json:"last_error,omitempty"`
	CreatedAt   int64           `json:"created_at,omitempty"`
	StartedAt   int64           `json:"started_at,omitempty"`
	CompletedAt int64           `json:"completed_at,omitempty"`
}

type documentView struct {
	DocID      string `json:"doc_id"`
	Filename   string `json:"filename"`
	Title      string `json:"title"`
	PageCount  int    `json:"page_count"`
	Status     string `json:"status"`
	TaskID     string `json:"task_id,omitempty"`
	IngestedAt string `json:"ingested_at,omitempty"`
}

type documentsResponse struct {
	Documents []documentView `json:"documents"`
	Count     int            `json:"count"`
}

func (c *apiClient) do(ctx context.Context, method, path string, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("daemon unreachable at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(payload, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *apiClient) postJSON(ctx context.Context, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	return c.do(ctx, http.MethodPost, path, "application/json", reader, out)
}

func (c *apiClient) ProcessDocuments(ctx context.Context, paths []string) (submitResponse, error) {
	var resp submitResponse
	err := c.postJSON(ctx, "/api/documents/process", map[string]any{"paths": paths}, &resp)
	return resp, err
}

func (c *apiClient) Upload(ctx context.Context, path string, content io.Reader) (submitResponse, error) {
	var resp submitResponse
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return resp, fmt.Errorf("build upload: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return resp, fmt.Errorf("read %s: %w", path, err)
	}
	if err := writer.Close(); err != nil {
		return resp, fmt.Errorf("build upload: %w", err)
	}
	err = c.do(ctx, http.MethodPost, "/api/upload", writer.FormDataContentType(), &buf, &resp)
	return resp, err
}

func (c *apiClient) Scan(ctx context.Context) (submitResponse, error) {
	var resp submitResponse
	err := c.postJSON(ctx, "/api/scan", nil, &resp)
	return resp, err
}

func (c *apiClient) CleanupAll(ctx context.Context) (submitResponse, error) {
	var resp submitResponse
	err := c.postJSON(ctx, "/api/cleanup", nil, &resp)
	return resp, err
}

func (c *apiClient) CleanupOld(ctx context.Context, maxAgeDays int) (submitResponse, error) {
	var resp submitResponse
	body := map[string]any{}
	if maxAgeDays > 0 {
		body["max_age_days"] = maxAgeDays
	}
	err := c.postJSON(ctx, "/api/cleanup/old", body, &resp)
	return resp, err
}

func (c *apiClient) TaskStatus(ctx context.Context, id string) (taskStatus, error) {
	var status taskStatus
	err := c.do(ctx, http.MethodGet, "/api/tasks/"+id, "", nil, &status)
	return status, err
}

func (c *apiClient) Documents(ctx context.Context, status string, limit int) (documentsResponse, error) {
	var resp documentsResponse
	path := "/api/documents"
	params := []string{}
	if status != "" {
		params = append(params, "status="+status)
	}
	if limit > 0 {
		params = append(params, "limit="+strconv.Itoa(limit))
	}
	if len(params) > 0 {
		path += "?" + strings.Join(params, "&")
	}
	err := c.do(ctx, http.MethodGet, path, "", nil, &resp)
	return resp, err
}

func (c *apiClient) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/api/health", "", nil, nil)
}
