// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package health

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/ManuGH/clipgate/internal/config"
	"github.com/ManuGH/clipgate/internal/log"
	"github.com/rs/zerolog"
)

// PerformStartupChecks validates the environment and dependencies before starting the server.
func PerformStartupChecks(_ context.Context, cfg config.AppConfig) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Msg("running pre-flight startup checks")

	if err := os.MkdirAll(cfg.Download.TempDir, 0o750); err != nil {
		return fmt.Errorf("temp directory check failed: %w", err)
	}
	if err := CheckWritableDir(cfg.Download.TempDir); err != nil {
		return fmt.Errorf("temp directory check failed: %w", err)
	}
	logger.Info().Str("path", cfg.Download.TempDir).Msg("temp directory is writable")

	if err := checkListenAddr("API", cfg.API.ListenAddr); err != nil {
		return err
	}
	if cfg.Metrics.Enabled {
		if err := checkListenAddr("metrics", cfg.Metrics.ListenAddr); err != nil {
			return err
		}
	}
	if err := checkPublicBaseURL(logger, cfg.API.PublicBaseURL); err != nil {
		return err
	}

	bin := strings.TrimSpace(cfg.Extractor.Bin)
	path, err := exec.LookPath(bin)
	if err != nil {
		return fmt.Errorf("extractor binary not found (%s): %w", bin, err)
	}
	logger.Info().Str("extractor", path).Msg("extractor available")

	if cfg.Store.Backend == config.BackendMemory {
		logger.Warn().
			Str("store_backend", cfg.Store.Backend).
			Msg("in-memory store; download sessions do not survive restarts")
	}

	logger.Info().Msg("all startup checks passed")
	return nil
}

func checkListenAddr(name, addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid %s listen address %q: %w", name, addr, err)
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 0 || n > 65535 {
		return fmt.Errorf("invalid %s listen port %q in %q", name, port, addr)
	}
	return nil
}

func checkPublicBaseURL(logger zerolog.Logger, raw string) error {
	if raw == "" {
		logger.Info().Msg("no public base URL; download links are relative")
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid public base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("public base URL scheme must be http or https, got: %s", u.Scheme)
	}
	if u.Scheme == "http" {
		logger.Warn().Str("url", raw).Msg("public base URL is not https; download tokens travel in clear text")
	}
	return nil
}
