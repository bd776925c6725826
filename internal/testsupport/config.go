package testsupport

import (
	"path/filepath"
	"testing"

	"dubcast/internal/config"
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
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.RunsDir = filepath.Join(base, "runs")
	cfgVal.Paths.AssetDir = filepath.Join(base, "assets")
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

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithMaxQueue sets the admission limit on the test config.
func WithMaxQueue(limit int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Pipeline.MaxQueue = limit
	}
}

// WithConcurrency sets the parallel flag and slot count on the test config.
func WithConcurrency(parallel bool, maxConcurrent int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Pipeline.ParallelEnabled = parallel
		b.cfg.Pipeline.MaxConcurrent = maxConcurrent
	}
}

// WithServiceURL points every collaborator service at the given base URL,
// typically an httptest server.
func WithServiceURL(baseURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Services.Media.BaseURL = baseURL
		b.cfg.Services.ASR.BaseURL = baseURL
		b.cfg.Services.Translate.BaseURL = baseURL
		b.cfg.Services.TTS.BaseURL = baseURL
	}
}

// WithIntroAssets sets the fixed intro asset list on the test config.
func WithIntroAssets(paths ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Pipeline.IntroAssets = paths
	}
}
