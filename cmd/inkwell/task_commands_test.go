package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newFakeDaemon(t *testing.T, handler http.HandlerFunc) string {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server.URL
}

func TestScanCommandPrintsTaskID(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	url := newFakeDaemon(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/scan" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]string{"task_id": "scan-42"})
	})

	output, err := runCommand(t, "--api", url, "scan")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if !strings.Contains(output, "scan-42") {
		t.Fatalf("expected task id in output, got %q", output)
	}
}

func TestStatusCommandRendersResult(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	url := newFakeDaemon(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/tasks/") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "task-7",
			"kind":   "scan_for_new_files",
			"queue":  "file_scanning",
			"state":  "succeeded",
			"result": map[string]any{"count": 3},
		})
	})

	output, err := runCommand(t, "--api", url, "status", "task-7")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{"task-7", "succeeded", "file_scanning", `"count": 3`} {
		if !strings.Contains(output, want) {
			t.Fatalf("expected %q in output, got %q", want, output)
		}
	}
}

func TestStatusCommandSurfacesAPIError(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	url := newFakeDaemon(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "task not found"})
	})

	_, err := runCommand(t, "--api", url, "status", "missing")
	if err == nil || !strings.Contains(err.Error(), "task not found") {
		t.Fatalf("expected api error, got %v", err)
	}
}
