// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Command clipgate serves short-lived, single-use download links for media
// fetched from an allow-listed set of hosts.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ManuGH/clipgate/internal/config"
	"github.com/ManuGH/clipgate/internal/daemon"
	"github.com/ManuGH/clipgate/internal/health"
	"github.com/ManuGH/clipgate/internal/log"
	"github.com/ManuGH/clipgate/internal/version"
)

// maskURL removes user info from a URL string for safe logging.
func maskURL(rawURL string) string {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return "invalid-url-redacted"
	}
	parsedURL.User = nil
	return parsedURL.String()
}

// resolveConfigPath prefers the flag, then CLIPGATE_CONFIG. An empty result
// means env and defaults only.
func resolveConfigPath(flagValue string) string {
	if p := strings.TrimSpace(flagValue); p != "" {
		return p
	}
	return strings.TrimSpace(config.ParseString("CLIPGATE_CONFIG", ""))
}

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "config":
			os.Exit(runConfigCLI(os.Args[2:]))
		case "healthcheck":
			os.Exit(runHealthcheckCLI(os.Args[2:]))
		}
	}

	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		os.Exit(0)
	}
	os.Exit(run(resolveConfigPath(*configPath)))
}

func run(configPath string) int {
	loader := config.NewLoader(configPath, version.Version)
	cfg, err := loader.Load()

	log.Configure(log.Config{
		Level:   cfg.LogLevel,
		Service: "clipgate",
		Version: version.Version,
	})
	logger := log.WithComponent("main")

	if err != nil {
		logger.Error().
			Err(err).
			Str("event", "config.load_failed").
			Str("config_path", configPath).
			Msg("failed to load configuration")
		return 1
	}
	if configPath != "" {
		logger.Info().Str("event", "config.loaded").Str("source", "file").Str("path", configPath).Msg("loaded configuration from file")
	} else {
		logger.Info().Str("event", "config.loaded").Str("source", "env+defaults").Msg("loaded configuration from environment and defaults")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := health.PerformStartupChecks(ctx, cfg); err != nil {
		logger.Error().
			Err(err).
			Str("event", "startup.check_failed").
			Msg("startup checks failed, verify configuration and permissions")
		return 1
	}

	rt, err := daemon.Build(ctx, cfg, daemon.BuildOptions{})
	if err != nil {
		logger.Error().Err(err).Str("event", "bootstrap.failed").Msg("failed to assemble runtime")
		return 1
	}

	mgr, err := daemon.NewManager(daemon.DefaultServerConfig(cfg.API.ListenAddr, cfg.API.ShutdownTimeout), rt.Deps())
	if err != nil {
		_ = rt.Close(context.Background())
		logger.Error().Err(err).Str("event", "manager.creation.failed").Msg("failed to create server manager")
		return 1
	}
	rt.RegisterHooks(mgr)

	logger.Info().
		Str("event", "startup").
		Str("version", version.Version).
		Str("commit", version.Commit).
		Str("build_date", version.Date).
		Str("addr", cfg.API.ListenAddr).
		Str("public_base_url", maskURL(cfg.API.PublicBaseURL)).
		Strs("allowed_hosts", cfg.Download.AllowedHosts).
		Msg("starting clipgate")

	holder := config.NewConfigHolder(cfg, loader)
	app := daemon.NewApp(log.WithComponent("daemon"), mgr, holder, rt)
	if err := app.Run(ctx); err != nil {
		logger.Error().Err(err).Str("event", "daemon.failed").Msg("daemon stopped with error")
		return 1
	}
	logger.Info().Str("event", "shutdown").Msg("clipgate stopped")
	return 0
}
