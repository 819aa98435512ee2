// Package testsupport provides shared helpers for package tests.
package testsupport

import (
	"path/filepath"
	"testing"

	"zrelay/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with a unique temp directory per test.
// The mock bridge is enabled with zero latency so tests never touch hardware,
// and history is disabled unless a test opts in.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.LogDir = filepath.Join(base, "logs")
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Mock.Enabled = true
	cfg.Mock.LatencyMS = 0
	cfg.History.Enabled = false
	cfg.Logging.Format = "console"

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithAPIKey sets the front door API key on the test config.
func WithAPIKey(key string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Server.APIKey = key
	}
}

// WithHistory enables the exchange log backed by the test temp directory.
func WithHistory() ConfigOption {
	return func(cfg *config.Config) {
		cfg.History.Enabled = true
		cfg.History.Path = filepath.Join(cfg.LogDir, "history.db")
	}
}

// WithCORSOrigin sets the allowed browser origin on the test config.
func WithCORSOrigin(origin string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Server.CORSOrigin = origin
	}
}
