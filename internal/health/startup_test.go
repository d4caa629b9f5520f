// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package health

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ManuGH/clipgate/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startupConfig(t *testing.T) config.AppConfig {
	t.Helper()
	exe, err := os.Executable()
	require.NoError(t, err)
	var cfg config.AppConfig
	cfg.API.ListenAddr = ":8080"
	cfg.API.PublicBaseURL = "https://dl.example.com"
	cfg.Download.TempDir = filepath.Join(t.TempDir(), "sessions")
	cfg.Extractor.Bin = exe
	cfg.Store.Backend = config.BackendMemory
	return cfg
}

func TestPerformStartupChecks(t *testing.T) {
	cfg := startupConfig(t)
	require.NoError(t, PerformStartupChecks(context.Background(), cfg))
	assert.DirExists(t, cfg.Download.TempDir)
}

func TestPerformStartupChecksFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.AppConfig)
		want   string
	}{
		{"bad listen addr", func(c *config.AppConfig) { c.API.ListenAddr = "8080" }, "listen address"},
		{"bad metrics port", func(c *config.AppConfig) {
			c.Metrics.Enabled = true
			c.Metrics.ListenAddr = ":99999"
		}, "listen port"},
		{"bad base url scheme", func(c *config.AppConfig) { c.API.PublicBaseURL = "ftp://x" }, "scheme"},
		{"missing extractor", func(c *config.AppConfig) { c.Extractor.Bin = "clipgate-no-such-binary" }, "extractor binary"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := startupConfig(t)
			tt.mutate(&cfg)
			err := PerformStartupChecks(context.Background(), cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
