package logging_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"inkwell/internal/config"
	"inkwell/internal/logging"
	"inkwell/internal/services"
)

func TestNewFromConfigConsole(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	if logger == nil {
		t.Fatal("expected logger instance")
	}
	logger.Debug("debug message")
}

func TestConsoleHandlerWritesComponentPrefix(t *testing.T) {
	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "console.log")

	logger, err := logging.New(logging.Options{
		Format:      "console",
		Level:       "info",
		OutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logging.NewComponentLogger(logger, "taskqueue").Info("worker started", logging.Int("workers", 2))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	if !strings.Contains(line, "taskqueue: worker started") {
		t.Fatalf("expected component prefix, got %q", line)
	}
	if !strings.Contains(line, "workers=2") {
		t.Fatalf("expected attribute output, got %q", line)
	}
}

func TestJSONHandlerLowercasesLevel(t *testing.T) {
	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "json.log")

	logger, err := logging.New(logging.Options{
		Format:      "json",
		Level:       "warn",
		OutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("suppressed")
	logger.Warn("kept")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	out := string(content)
	if strings.Contains(out, "suppressed") {
		t.Fatalf("expected info to be filtered at warn level: %q", out)
	}
	if !strings.Contains(out, `"level":"warn"`) {
		t.Fatalf("expected lowercase level key, got %q", out)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestWithContextAddsTaskFields(t *testing.T) {
	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "ctx.log")

	logger, err := logging.New(logging.Options{
		Format:      "console",
		Level:       "info",
		OutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithTaskID(context.Background(), "task-42")
	ctx = services.WithQueue(ctx, "pdf_processing")
	logging.WithContext(ctx, logger).Info("stage started")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	if !strings.Contains(line, "task_id=task-42") {
		t.Fatalf("expected task id field, got %q", line)
	}
	if !strings.Contains(line, "queue=pdf_processing") {
		t.Fatalf("expected queue field, got %q", line)
	}
}
