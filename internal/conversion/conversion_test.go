package conversion_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"inkwell/internal/conversion"
	"inkwell/internal/services/docling"
	"inkwell/internal/testsupport"
)

func newEngineServer(t *testing.T, handler func(filename string, ocr bool) (int, string)) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		filename := ""
		if files := r.MultipartForm.File["files"]; len(files) == 1 {
			filename = files[0].Filename
		}
		code, body := handler(filename, r.FormValue("do_ocr") == "true")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func successBody(filename string) string {
	return fmt.Sprintf(`{
		"status": "success",
		"document": {
			"filename": %q,
			"md_content": "# converted",
			"doctags_content": "<doctag>converted %s</doctag>",
			"json_content": {"name": %q},
			"page_count": 4
		}
	}`, filename, filename, filename)
}

func TestConvertAllWritesExports(t *testing.T) {
	server := newEngineServer(t, func(filename string, ocr bool) (int, string) {
		return http.StatusOK, successBody(filename)
	})

	uploadDir := t.TempDir()
	outputDir := filepath.Join(t.TempDir(), "task_1")
	first := filepath.Join(uploadDir, "alpha.pdf")
	second := filepath.Join(uploadDir, "beta.pdf")
	testsupport.WriteFile(t, first, []byte("%PDF alpha"))
	testsupport.WriteFile(t, second, []byte("%PDF beta"))

	engine := conversion.NewDoclingEngine(docling.NewClient(server.URL), conversion.Options{
		JSONOutput:     true,
		MarkdownOutput: true,
		DoctagsOutput:  true,
	}, nil)
	batch, err := engine.ConvertAll(context.Background(), []string{first, second}, outputDir)
	if err != nil {
		t.Fatalf("ConvertAll: %v", err)
	}
	if batch.Status != conversion.BatchSuccess || batch.Succeeded != 2 || batch.Failed != 0 {
		t.Fatalf("unexpected batch: %+v", batch)
	}

	seen := map[string]bool{}
	for _, result := range batch.Results {
		if len(result.DocID) != 64 {
			t.Fatalf("expected sha256 hex doc id, got %q", result.DocID)
		}
		if seen[result.DocID] {
			t.Fatalf("duplicate doc id %q", result.DocID)
		}
		seen[result.DocID] = true
		if result.PageCount != 4 {
			t.Fatalf("expected engine page count, got %d", result.PageCount)
		}
		if result.DoctagsText == "" {
			t.Fatal("expected doctags text on result")
		}
		for _, path := range []string{result.DoctagsPath, result.MarkdownPath, result.JSONPath} {
			if path == "" {
				t.Fatalf("missing export path on %+v", result)
			}
			if _, err := os.Stat(path); err != nil {
				t.Fatalf("export not written: %v", err)
			}
		}
	}
}

func TestConvertAllFailsFastOnMissingFile(t *testing.T) {
	server := newEngineServer(t, func(filename string, ocr bool) (int, string) {
		t.Error("engine should never be called")
		return http.StatusOK, successBody(filename)
	})

	uploadDir := t.TempDir()
	outputDir := filepath.Join(t.TempDir(), "task_2")
	present := filepath.Join(uploadDir, "present.pdf")
	testsupport.WriteFile(t, present, []byte("%PDF"))

	engine := conversion.NewDoclingEngine(docling.NewClient(server.URL),
		conversion.Options{DoctagsOutput: true}, nil)
	_, err := engine.ConvertAll(context.Background(),
		[]string{present, filepath.Join(uploadDir, "absent.pdf")}, outputDir)
	if err == nil {
		t.Fatal("expected preflight error")
	}
	if _, statErr := os.Stat(outputDir); !os.IsNotExist(statErr) {
		t.Fatal("expected no output directory after preflight failure")
	}
}

func TestConvertAllReportsPartialSuccess(t *testing.T) {
	server := newEngineServer(t, func(filename string, ocr bool) (int, string) {
		if filename == "bad.pdf" {
			return http.StatusOK, `{"status": "failure", "errors": ["unreadable"], "document": {}}`
		}
		return http.StatusOK, successBody(filename)
	})

	uploadDir := t.TempDir()
	outputDir := filepath.Join(t.TempDir(), "task_3")
	good := filepath.Join(uploadDir, "good.pdf")
	bad := filepath.Join(uploadDir, "bad.pdf")
	testsupport.WriteFile(t, good, []byte("%PDF good"))
	testsupport.WriteFile(t, bad, []byte("%PDF bad"))

	engine := conversion.NewDoclingEngine(docling.NewClient(server.URL),
		conversion.Options{DoctagsOutput: true, EnableOCR: true}, nil)
	batch, err := engine.ConvertAll(context.Background(), []string{good, bad}, outputDir)
	if err != nil {
		t.Fatalf("ConvertAll: %v", err)
	}
	if batch.Status != conversion.BatchPartialSuccess {
		t.Fatalf("expected partial success, got %q", batch.Status)
	}
	if batch.Succeeded != 1 || batch.Failed != 1 {
		t.Fatalf("unexpected counts: %+v", batch)
	}
	for _, result := range batch.Results {
		if result.Filename == "bad.pdf" {
			if result.Status != conversion.DocFailure || result.Error == "" {
				t.Fatalf("expected failure detail, got %+v", result)
			}
		}
	}
}

func TestConvertAllCountsPartialWithoutExporting(t *testing.T) {
	var calls atomic.Int32
	server := newEngineServer(t, func(filename string, ocr bool) (int, string) {
		calls.Add(1)
		if filename == "torn.pdf" {
			return http.StatusOK, `{
				"status": "partial_success",
				"errors": ["page 3 unreadable"],
				"document": {"filename": "torn.pdf", "doctags_content": "<doctag>torn</doctag>"}
			}`
		}
		return http.StatusOK, successBody(filename)
	})

	uploadDir := t.TempDir()
	outputDir := filepath.Join(t.TempDir(), "task_5")
	whole := filepath.Join(uploadDir, "whole.pdf")
	torn := filepath.Join(uploadDir, "torn.pdf")
	testsupport.WriteFile(t, whole, []byte("%PDF whole"))
	testsupport.WriteFile(t, torn, []byte("%PDF torn"))

	engine := conversion.NewDoclingEngine(docling.NewClient(server.URL),
		conversion.Options{DoctagsOutput: true}, nil)
	batch, err := engine.ConvertAll(context.Background(), []string{whole, torn}, outputDir)
	if err != nil {
		t.Fatalf("ConvertAll: %v", err)
	}
	if batch.Succeeded != 1 || batch.PartialSucceeded != 1 || batch.Failed != 0 {
		t.Fatalf("unexpected counts: %+v", batch)
	}
	if batch.Succeeded+batch.PartialSucceeded+batch.Failed != len(batch.Results) {
		t.Fatalf("counts do not cover the batch: %+v", batch)
	}
	if batch.Status != conversion.BatchPartialSuccess {
		t.Fatalf("expected partial batch status, got %q", batch.Status)
	}
	if calls.Load() != 2 {
		t.Fatalf("partial output must not trigger the ocr retry, got %d calls", calls.Load())
	}
	for _, result := range batch.Results {
		if result.Filename != "torn.pdf" {
			continue
		}
		if result.Status != conversion.DocPartialSuccess {
			t.Fatalf("expected partial status, got %+v", result)
		}
		if result.DoctagsPath != "" || result.DoctagsText != "" {
			t.Fatalf("partial output must not be exported: %+v", result)
		}
	}
}

func TestConvertAllRetriesWithOCR(t *testing.T) {
	var plainAttempts, ocrAttempts atomic.Int32
	server := newEngineServer(t, func(filename string, ocr bool) (int, string) {
		if !ocr {
			plainAttempts.Add(1)
			return http.StatusOK, `{"status": "failure", "errors": ["no text layer"], "document": {}}`
		}
		ocrAttempts.Add(1)
		return http.StatusOK, successBody(filename)
	})

	uploadDir := t.TempDir()
	scanned := filepath.Join(uploadDir, "scan.pdf")
	testsupport.WriteFile(t, scanned, []byte("%PDF scan"))

	engine := conversion.NewDoclingEngine(docling.NewClient(server.URL),
		conversion.Options{DoctagsOutput: true}, nil)
	batch, err := engine.ConvertAll(context.Background(), []string{scanned},
		filepath.Join(t.TempDir(), "task_4"))
	if err != nil {
		t.Fatalf("ConvertAll: %v", err)
	}
	if batch.Status != conversion.BatchSuccess {
		t.Fatalf("expected success after ocr retry, got %+v", batch)
	}
	if plainAttempts.Load() != 1 || ocrAttempts.Load() != 1 {
		t.Fatalf("expected one plain and one ocr attempt, got %d/%d",
			plainAttempts.Load(), ocrAttempts.Load())
	}
}

func TestNewDocIDChangesWithTime(t *testing.T) {
	now := time.Now()
	first := conversion.NewDocID("/tmp/report.pdf", now)
	second := conversion.NewDocID("/tmp/report.pdf", now.Add(time.Millisecond))
	if first == second {
		t.Fatal("expected distinct doc ids for distinct timestamps")
	}
	if len(first) != 64 {
		t.Fatalf("expected sha256 hex, got %q", first)
	}
}
