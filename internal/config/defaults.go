package config

const (
	defaultUploadDir         = "~/.local/share/inkwell/uploads"
	defaultOutputDir         = "~/.local/share/inkwell/output"
	defaultRAGDir            = "~/.local/share/inkwell/rag"
	defaultDataDir           = "~/.local/share/inkwell/data"
	defaultLogDir            = "~/.local/share/inkwell/logs"
	defaultAPIBind           = "127.0.0.1:8642"
	defaultRedisAddr         = "127.0.0.1:6379"
	defaultConnectRetries    = 10
	defaultPDFWorkers        = 2
	defaultScanWorkers       = 4
	defaultMaintWorkers      = 1
	defaultNoteWorkers       = 2
	defaultMaxTasksPerWorker = 1000
	defaultVisibilityTimeout = 1860 // hard conversion limit plus a grace minute
	defaultResultRetention   = 3600
	defaultEngineURL         = "http://127.0.0.1:5001"
	defaultEngineTimeout     = 1800
	defaultThreadCount       = 4
	defaultIndexURL          = "http://127.0.0.1:9621"
	defaultIndexTimeout      = 600
	defaultCleanupMaxAgeDays = 7
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			UploadDir: defaultUploadDir,
			OutputDir: defaultOutputDir,
			RAGDir:    defaultRAGDir,
			DataDir:   defaultDataDir,
			LogDir:    defaultLogDir,
			APIBind:   defaultAPIBind,
		},
		Redis: Redis{
			Addr:           defaultRedisAddr,
			ConnectRetries: defaultConnectRetries,
		},
		Workers: Workers{
			PDFProcessing:     defaultPDFWorkers,
			FileScanning:      defaultScanWorkers,
			Maintenance:       defaultMaintWorkers,
			NoteGeneration:    defaultNoteWorkers,
			MaxTasksPerWorker: defaultMaxTasksPerWorker,
			VisibilityTimeout: defaultVisibilityTimeout,
			ResultRetention:   defaultResultRetention,
		},
		Conversion: Conversion{
			EngineURL:      defaultEngineURL,
			TimeoutSeconds: defaultEngineTimeout,
			ThreadCount:    defaultThreadCount,
			JSONOutput:     true,
			MarkdownOutput: true,
			DoctagsOutput:  true,
		},
		Ingest: Ingest{
			IndexURL:       defaultIndexURL,
			TimeoutSeconds: defaultIndexTimeout,
		},
		Cleanup: Cleanup{
			MaxAgeDays: defaultCleanupMaxAgeDays,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
