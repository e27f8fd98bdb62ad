package docling_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"inkwell/internal/services/docling"
	"inkwell/internal/testsupport"
)

func TestConvertFileUploadsMultipart(t *testing.T) {
	var gotFormats []string
	var gotOCR string
	var gotGPU string
	var gotFilename string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1alpha/convert/file" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		gotFormats = r.MultipartForm.Value["to_formats"]
		gotOCR = r.FormValue("do_ocr")
		gotGPU = r.FormValue("use_gpu")
		if files := r.MultipartForm.File["files"]; len(files) == 1 {
			gotFilename = files[0].Filename
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"status": "success",
			"document": {
				"filename": "sample.pdf",
				"md_content": "# Sample",
				"doctags_content": "<doctag>sample</doctag>",
				"page_count": 2
			}
		}`))
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "sample.pdf")
	testsupport.WriteFile(t, path, []byte("%PDF-1.4 fake"))

	client := docling.NewClient(server.URL)
	result, err := client.ConvertFile(context.Background(), path, docling.ConvertOptions{
		Formats: []string{docling.FormatMarkdown, docling.FormatDoctags},
		OCR:     true,
		UseGPU:  true,
	})
	if err != nil {
		t.Fatalf("ConvertFile: %v", err)
	}
	if !result.Succeeded() {
		t.Fatalf("expected success, got %q", result.Status)
	}
	if result.Document.DoctagsText != "<doctag>sample</doctag>" {
		t.Fatalf("unexpected doctags: %q", result.Document.DoctagsText)
	}
	if result.Document.PageCount != 2 {
		t.Fatalf("unexpected page count: %d", result.Document.PageCount)
	}
	if len(gotFormats) != 2 || gotFormats[0] != "md" {
		t.Fatalf("unexpected formats: %v", gotFormats)
	}
	if gotOCR != "true" {
		t.Fatalf("expected OCR flag, got %q", gotOCR)
	}
	if gotGPU != "true" {
		t.Fatalf("expected GPU flag, got %q", gotGPU)
	}
	if gotFilename != "sample.pdf" {
		t.Fatalf("unexpected upload name %q", gotFilename)
	}
}

func TestConvertFileMissingSource(t *testing.T) {
	client := docling.NewClient("http://127.0.0.1:0")
	_, err := client.ConvertFile(context.Background(), filepath.Join(t.TempDir(), "absent.pdf"), docling.ConvertOptions{})
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestConvertFileServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "engine overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "doc.pdf")
	testsupport.WriteFile(t, path, []byte("%PDF"))

	client := docling.NewClient(server.URL)
	_, err := client.ConvertFile(context.Background(), path, docling.ConvertOptions{})
	if err == nil || !strings.Contains(err.Error(), "503") {
		t.Fatalf("expected http 503 error, got %v", err)
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

	client := docling.NewClient(server.URL)
	if err := client.Health(context.Background()); err != nil {
		t.Fatalf("Health: %v", err)
	}
}
