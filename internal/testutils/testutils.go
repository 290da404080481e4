package testutils

import (
	"io"
	"log/slog"
	"testing"

	"github.com/nfrund/relay/internal/config"
)

// ConfigForTests returns a valid config for integration tests. overrides are
// applied with t.Setenv before parsing, so they are restored afterwards.
// .env files are never read.
func ConfigForTests(t *testing.T, overrides map[string]string) *config.Config {
	t.Helper()

	base := map[string]string{
		"PORT":                 "0",
		"ALLOWED_ORIGINS":      "http://allowed.test",
		"ALLOW_EMPTY_ORIGIN":   "true",
		"UPGRADE_RATE_LIMIT":   "1000",
		"SHUTDOWN_TIMEOUT":     "2s",
		"LOG_LEVEL":            "error",
		"TRACING_ENABLED":      "false",
		"ALLOWED_ORIGINS_FILE": "",
	}
	for key, value := range overrides {
		base[key] = value
	}
	for key, value := range base {
		t.Setenv(key, value)
	}

	cfg, err := config.Parse()
	if err != nil {
		t.Fatalf("invalid test config: %v", err)
	}
	return cfg
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
