package testsupport

import (
	"path/filepath"
	"testing"

	"chatbatch/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a valid config whose data, output and log paths live in
// a per-test temp directory. Options run after the defaults are applied.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.API.APIKey = "test"
	cfgVal.API.Model = "test/model"
	cfgVal.API.BaseURL = "http://127.0.0.1:1"
	cfgVal.Data.Path = filepath.Join(base, "input.jsonl")
	cfgVal.Processes.Parallel = 2

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	if err := builder.cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return builder.cfg
}

// WithBaseURL points the API section at a test server.
func WithBaseURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.API.BaseURL = url
	}
}

// WithFormat sets both the input and output projection format.
func WithFormat(format string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Data.Format = format
		b.cfg.Output.Format = format
	}
}

// WithOutput enables persistence to a file named name inside the temp dir.
func WithOutput(name, dataType string, checkpointInterval int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Output.Path = filepath.Join(b.baseDir, name)
		b.cfg.Output.Type = dataType
		if b.cfg.Output.Format == "" {
			b.cfg.Output.Format = b.cfg.Data.Format
		}
		if b.cfg.Output.Table == "" {
			b.cfg.Output.Table = b.cfg.Data.Table
		}
		b.cfg.Output.CheckpointInterval = checkpointInterval
	}
}

// WithVerification enables the verification stage with the given method.
// Method-specific settings get the smallest valid value.
func WithVerification(method string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Verification.Enabled = true
		b.cfg.Verification.Method = method
		switch method {
		case config.VerifyMinLength:
			if b.cfg.Verification.MinLength == 0 {
				b.cfg.Verification.MinLength = 1
			}
		case config.VerifyRegex:
			if b.cfg.Verification.Pattern == "" {
				b.cfg.Verification.Pattern = "."
			}
		}
	}
}

// WithParallel overrides the dispatch worker count.
func WithParallel(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Processes.Parallel = n
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Data.Path)
}
