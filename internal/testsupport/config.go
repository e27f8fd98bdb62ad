package testsupport

import (
	"path/filepath"
	"testing"

	"inkwell/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.UploadDir = filepath.Join(base, "uploads")
	cfgVal.Paths.OutputDir = filepath.Join(base, "output")
	cfgVal.Paths.RAGDir = filepath.Join(base, "rag")
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithEngineURL points the conversion engine client at a test server.
func WithEngineURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Conversion.EngineURL = url
	}
}

// WithIndexURL points the index client at a test server.
func WithIndexURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Ingest.IndexURL = url
	}
}

// WithAPIToken enables bearer-token auth on the test config.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIToken = token
	}
}

// WithRedisAddr overrides the broker address on the test config.
func WithRedisAddr(addr string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Redis.Addr = addr
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.UploadDir)
}
