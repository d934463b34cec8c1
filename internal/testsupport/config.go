package testsupport

import (
	"path/filepath"
	"testing"

	"readcast/internal/config"
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
	cfgVal.Paths.StagingDir = filepath.Join(base, "staging")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Source.Token = "test-source-token"
	cfgVal.Generation.SessionToken = "test-session-token"
	cfgVal.Generation.BaseURL = "http://127.0.0.1:0"
	cfgVal.Publish.Endpoint = "http://127.0.0.1:0"
	cfgVal.Publish.Region = "auto"
	cfgVal.Publish.AccessKeyID = "test-access-key"
	cfgVal.Publish.SecretAccessKey = "test-secret-key"
	cfgVal.Publish.Bucket = "test-bucket"
	cfgVal.Publish.PublicBaseURL = "https://cdn.example.com"
	cfgVal.Feed.Title = "Test Feed"
	cfgVal.Feed.Description = "Articles as audio"
	cfgVal.Feed.Author = "Test Author"

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

// WithRunLimit overrides the per-run work budget on the test config.
func WithRunLimit(limit int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Pipeline.RunLimit = limit
	}
}

// WithMaxAttempts overrides the per-stage retry ceiling on the test config.
func WithMaxAttempts(attempts int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Pipeline.MaxAttempts = attempts
	}
}

// WithMinArtifactBytes overrides the artifact size floor on the test config.
func WithMinArtifactBytes(size int64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Generation.MinArtifactBytes = size
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StagingDir)
}
