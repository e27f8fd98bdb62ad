package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeRedis()
	c.normalizeWorkers()
	c.normalizeConversion()
	c.normalizeIngest()
	c.normalizeCleanup()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.UploadDir, err = expandPath(c.Paths.UploadDir); err != nil {
		return fmt.Errorf("paths.upload_dir: %w", err)
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if c.Paths.RAGDir, err = expandPath(c.Paths.RAGDir); err != nil {
		return fmt.Errorf("paths.rag_dir: %w", err)
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	return nil
}

func (c *Config) normalizeRedis() {
	c.Redis.Addr = strings.TrimSpace(c.Redis.Addr)
	if c.Redis.Addr == "" {
		c.Redis.Addr = defaultRedisAddr
	}
	if c.Redis.Password == "" {
		if value, ok := os.LookupEnv("INKWELL_REDIS_PASSWORD"); ok {
			c.Redis.Password = strings.TrimSpace(value)
		}
	}
	if c.Redis.ConnectRetries <= 0 {
		c.Redis.ConnectRetries = defaultConnectRetries
	}
}

func (c *Config) normalizeWorkers() {
	if c.Workers.PDFProcessing <= 0 {
		c.Workers.PDFProcessing = defaultPDFWorkers
	}
	if c.Workers.FileScanning <= 0 {
		c.Workers.FileScanning = defaultScanWorkers
	}
	if c.Workers.Maintenance <= 0 {
		c.Workers.Maintenance = defaultMaintWorkers
	}
	if c.Workers.NoteGeneration <= 0 {
		c.Workers.NoteGeneration = defaultNoteWorkers
	}
	if c.Workers.MaxTasksPerWorker <= 0 {
		c.Workers.MaxTasksPerWorker = defaultMaxTasksPerWorker
	}
	if c.Workers.VisibilityTimeout <= 0 {
		c.Workers.VisibilityTimeout = defaultVisibilityTimeout
	}
	if c.Workers.ResultRetention <= 0 {
		c.Workers.ResultRetention = defaultResultRetention
	}
}

func (c *Config) normalizeConversion() {
	c.Conversion.EngineURL = strings.TrimRight(strings.TrimSpace(c.Conversion.EngineURL), "/")
	if c.Conversion.EngineURL == "" {
		c.Conversion.EngineURL = defaultEngineURL
	}
	if c.Conversion.TimeoutSeconds <= 0 {
		c.Conversion.TimeoutSeconds = defaultEngineTimeout
	}
	if c.Conversion.ThreadCount <= 0 {
		c.Conversion.ThreadCount = defaultThreadCount
	}
}

func (c *Config) normalizeIngest() {
	c.Ingest.IndexURL = strings.TrimRight(strings.TrimSpace(c.Ingest.IndexURL), "/")
	if c.Ingest.IndexURL == "" {
		c.Ingest.IndexURL = defaultIndexURL
	}
	if c.Ingest.APIKey == "" {
		if value, ok := os.LookupEnv("INKWELL_INDEX_API_KEY"); ok {
			c.Ingest.APIKey = strings.TrimSpace(value)
		}
	}
	if c.Ingest.TimeoutSeconds <= 0 {
		c.Ingest.TimeoutSeconds = defaultIndexTimeout
	}
}

func (c *Config) normalizeCleanup() {
	if c.Cleanup.MaxAgeDays <= 0 {
		c.Cleanup.MaxAgeDays = defaultCleanupMaxAgeDays
	}
	if c.Cleanup.IntervalHours < 0 {
		c.Cleanup.IntervalHours = 0
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
