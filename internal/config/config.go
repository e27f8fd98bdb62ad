package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	UploadDir string `toml:"upload_dir"`
	OutputDir string `toml:"output_dir"`
	RAGDir    string `toml:"rag_dir"`
	DataDir   string `toml:"data_dir"`
	LogDir    string `toml:"log_dir"`
	APIBind   string `toml:"api_bind"`
	APIToken  string `toml:"api_token"`
}

// Redis contains broker connection configuration for the task queue.
type Redis struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	// ConnectRetries bounds automatic reconnect attempts before a submit
	// surfaces a fatal enqueue error to the caller.
	ConnectRetries int `toml:"connect_retries"`
}

// Workers contains worker pool sizing and lifecycle settings per queue.
type Workers struct {
	PDFProcessing  int `toml:"pdf_processing"`
	FileScanning   int `toml:"file_scanning"`
	Maintenance    int `toml:"maintenance"`
	NoteGeneration int `toml:"note_generation"`
	// MaxTasksPerWorker retires a worker goroutine after this many completed
	// tasks to bound leaked resources from the conversion engine.
	MaxTasksPerWorker int `toml:"max_tasks_per_worker"`
	// VisibilityTimeout is the started-task lease in seconds; a crashed
	// worker's task is redelivered after it elapses.
	VisibilityTimeout int `toml:"visibility_timeout"`
	// ResultRetention is how long task results are kept, in seconds.
	ResultRetention int `toml:"result_retention"`
}

// Conversion contains settings for the document conversion engine.
type Conversion struct {
	EngineURL      string `toml:"engine_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	EnableOCR      bool   `toml:"enable_ocr"`
	UseGPU         bool   `toml:"use_gpu"`
	ThreadCount    int    `toml:"thread_count"`
	JSONOutput     bool   `toml:"json_output"`
	MarkdownOutput bool   `toml:"markdown_output"`
	DoctagsOutput  bool   `toml:"doctags_output"`
}

// Ingest contains settings for the RAG index the pipeline pushes text into.
type Ingest struct {
	IndexURL       string `toml:"index_url"`
	APIKey         string `toml:"api_key"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Cleanup contains settings for artifact directory maintenance.
type Cleanup struct {
	// MaxAgeDays is the age threshold for the scheduled old-directory sweep.
	MaxAgeDays int `toml:"max_age_days"`
	// IntervalHours schedules periodic old-directory sweeps; 0 disables them.
	IntervalHours int `toml:"interval_hours"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for inkwell.
//
// Configuration sections by subsystem:
//   - Paths: upload/output/index/data directories and API bind address
//   - Redis: task broker and result store connection
//   - Workers: per-queue worker counts and worker lifecycle limits
//   - Conversion: conversion engine endpoint and export options
//   - Ingest: RAG index endpoint
//   - Cleanup: artifact retention sweeps
//   - Logging: log format and level
type Config struct {
	Paths      Paths      `toml:"paths"`
	Redis      Redis      `toml:"redis"`
	Workers    Workers    `toml:"workers"`
	Conversion Conversion `toml:"conversion"`
	Ingest     Ingest     `toml:"ingest"`
	Cleanup    Cleanup    `toml:"cleanup"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/inkwell/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("inkwell.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.UploadDir, c.Paths.OutputDir, c.Paths.RAGDir, c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
