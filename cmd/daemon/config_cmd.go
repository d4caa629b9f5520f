// SPDX-License-Identifier: MIT

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ManuGH/clipgate/internal/config"
	"github.com/ManuGH/clipgate/internal/version"
	"gopkg.in/yaml.v3"
)

const redacted = "***"

func runConfigCLI(args []string) int {
	return configCLI(args, os.Stdout, os.Stderr)
}

func configCLI(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printConfigUsage(stderr)
		return 0
	}

	switch args[0] {
	case "validate":
		return runConfigValidate(args[1:], stdout, stderr)
	case "dump":
		return runConfigDump(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown subcommand: %s\n\n", args[0])
		printConfigUsage(stderr)
		return 2
	}
}

func printConfigUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  clipgate config validate [--file|-f config.yaml]")
	fmt.Fprintln(w, "  clipgate config dump --effective [--file|-f config.yaml] [--format=yaml|json]")
}

func runConfigValidate(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("clipgate config validate", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var file string
	fs.StringVar(&file, "file", "", "path to YAML configuration file")
	fs.StringVar(&file, "f", "", "path to YAML configuration file (shorthand)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	configPath := resolveConfigPath(file)
	if _, err := config.NewLoader(configPath, version.Version).Load(); err != nil {
		fmt.Fprintf(stderr, "Configuration error in %s:\n  %v\n", describePath(configPath), err)
		return 1
	}

	fmt.Fprintf(stdout, "%s is valid\n", describePath(configPath))
	return 0
}

func runConfigDump(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("clipgate config dump", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var file string
	var format string
	var effective bool
	fs.StringVar(&file, "file", "", "path to YAML configuration file")
	fs.StringVar(&file, "f", "", "path to YAML configuration file (shorthand)")
	fs.StringVar(&format, "format", "yaml", "output format: yaml or json")
	fs.BoolVar(&effective, "effective", false, "dump effective configuration (defaults + file + env)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if !effective {
		fmt.Fprintln(stderr, "Error: --effective is required")
		return 2
	}

	configPath := resolveConfigPath(file)
	cfg, err := config.NewLoader(configPath, version.Version).Load()
	if err != nil {
		fmt.Fprintf(stderr, "Configuration error in %s:\n  %v\n", describePath(configPath), err)
		return 1
	}

	fileCfg := fileConfigFromAppConfig(cfg)
	redactFileConfigSecrets(&fileCfg)

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "yaml", "yml":
		enc := yaml.NewEncoder(stdout)
		enc.SetIndent(2)
		if err := enc.Encode(fileCfg); err != nil {
			fmt.Fprintf(stderr, "Failed to encode YAML: %v\n", err)
			return 1
		}
		_ = enc.Close()
		return 0
	case "json":
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(fileCfg); err != nil {
			fmt.Fprintf(stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	default:
		fmt.Fprintf(stderr, "Unsupported format: %s (use yaml or json)\n", format)
		return 2
	}
}

func describePath(p string) string {
	if p == "" {
		return "environment configuration"
	}
	return p
}

func fileConfigFromAppConfig(cfg config.AppConfig) config.FileConfig {
	rateLimitEnabled := cfg.API.RateLimitEnabled
	rateLimitRequests := cfg.API.RateLimitRequests
	metricsEnabled := cfg.Metrics.Enabled
	maxConcurrent := cfg.Download.MaxConcurrent
	queueLimit := cfg.Download.QueueLimit
	maxArtifactBytes := cfg.Download.MaxArtifactBytes
	rps := cfg.Extractor.RatePerSecond
	burst := cfg.Extractor.Burst
	redisDB := cfg.Redis.DB
	tracingEnabled := cfg.Telemetry.Enabled
	samplingRate := cfg.Telemetry.SamplingRate

	return config.FileConfig{
		LogLevel: cfg.LogLevel,
		API: &config.FileAPIConfig{
			ListenAddr:        cfg.API.ListenAddr,
			PublicBaseURL:     cfg.API.PublicBaseURL,
			AllowedOrigins:    cfg.API.AllowedOrigins,
			TrustedProxies:    cfg.API.TrustedProxies,
			RateLimitEnabled:  &rateLimitEnabled,
			RateLimitRequests: &rateLimitRequests,
			RateLimitWindow:   cfg.API.RateLimitWindow.String(),
			ShutdownTimeout:   cfg.API.ShutdownTimeout.String(),
		},
		Metrics: &config.FileMetricsConfig{
			Enabled:    &metricsEnabled,
			ListenAddr: cfg.Metrics.ListenAddr,
		},
		Download: &config.FileDownloadConfig{
			Secret:           cfg.Download.Secret,
			SecretFile:       cfg.Download.SecretFile,
			TokenTTL:         cfg.Download.TokenTTL.String(),
			TokenMode:        cfg.Download.TokenMode,
			MaxConcurrent:    &maxConcurrent,
			QueueLimit:       &queueLimit,
			GateWaitTimeout:  cfg.Download.GateWaitTimeout.String(),
			TempDir:          cfg.Download.TempDir,
			AllowedHosts:     cfg.Download.AllowedHosts,
			DefaultMode:      cfg.Download.DefaultMode,
			SweepInterval:    cfg.Download.SweepInterval.String(),
			MaxArtifactBytes: &maxArtifactBytes,
		},
		Extractor: &config.FileExtractorConfig{
			Bin:           cfg.Extractor.Bin,
			Timeout:       cfg.Extractor.Timeout.String(),
			RatePerSecond: &rps,
			Burst:         &burst,
		},
		Store: &config.FileStoreConfig{
			Backend: cfg.Store.Backend,
			Path:    cfg.Store.Path,
		},
		Redis: &config.FileRedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       &redisDB,
		},
		Cache: &config.FileCacheConfig{
			Backend:     cfg.Cache.Backend,
			MetadataTTL: cfg.Cache.MetadataTTL.String(),
		},
		Telemetry: &config.FileTelemetryConfig{
			Enabled:      &tracingEnabled,
			ServiceName:  cfg.Telemetry.ServiceName,
			Exporter:     cfg.Telemetry.Exporter,
			Endpoint:     cfg.Telemetry.Endpoint,
			SamplingRate: &samplingRate,
		},
	}
}

func redactFileConfigSecrets(cfg *config.FileConfig) {
	if cfg == nil {
		return
	}
	if cfg.Download != nil && cfg.Download.Secret != "" {
		cfg.Download.Secret = redacted
	}
	if cfg.Redis != nil && cfg.Redis.Password != "" {
		cfg.Redis.Password = redacted
	}
}
