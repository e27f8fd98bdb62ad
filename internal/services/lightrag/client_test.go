package lightrag_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"inkwell/internal/services/lightrag"
)

func TestInsertTextsSendsBatch(t *testing.T) {
	var gotKey string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/documents/texts" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotKey = r.Header.Get("X-API-Key")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status": "success", "message": "queued"}`))
	}))
	defer server.Close()

	client := lightrag.NewClient(server.URL, "secret")
	err := client.InsertTexts(context.Background(),
		[]string{"doc one text", "doc two text"},
		[]string{"one.pdf", "two.pdf"},
		[]string{"id-1", "id-2"})
	if err != nil {
		t.Fatalf("InsertTexts: %v", err)
	}
	if gotKey != "secret" {
		t.Fatalf("expected api key header, got %q", gotKey)
	}
	texts, ok := gotBody["texts"].([]any)
	if !ok || len(texts) != 2 {
		t.Fatalf("unexpected texts payload: %v", gotBody["texts"])
	}
	ids, ok := gotBody["ids"].([]any)
	if !ok || ids[0] != "id-1" {
		t.Fatalf("unexpected ids payload: %v", gotBody["ids"])
	}
}

func TestInsertTextsValidatesLengths(t *testing.T) {
	client := lightrag.NewClient("http://127.0.0.1:0", "")
	if err := client.InsertTexts(context.Background(), nil, nil, nil); err == nil {
		t.Fatal("expected error for empty batch")
	}
	if err := client.InsertTexts(context.Background(),
		[]string{"a"}, []string{"x", "y"}, nil); err == nil {
		t.Fatal("expected error for mismatched file sources")
	}
	if err := client.InsertTexts(context.Background(),
		[]string{"a"}, nil, []string{"1", "2"}); err == nil {
		t.Fatal("expected error for mismatched ids")
	}
}

func TestInsertTextsServerFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status": "failure", "message": "index locked"}`))
	}))
	defer server.Close()

	client := lightrag.NewClient(server.URL, "")
	err := client.InsertTexts(context.Background(), []string{"text"}, nil, nil)
	if err == nil || !strings.Contains(err.Error(), "index locked") {
		t.Fatalf("expected server failure error, got %v", err)
	}
}

func TestHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := lightrag.NewClient(server.URL, "")
	if err := client.Health(context.Background()); err != nil {
		t.Fatalf("Health: %v", err)
	}
}
