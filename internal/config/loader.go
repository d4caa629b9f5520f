// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrUnknownConfigField marks config files carrying keys no setting reads.
var ErrUnknownConfigField = errors.New("unknown config field")

// Loader handles configuration loading with precedence
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader creates a new configuration loader
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Path returns the config file path (empty for ENV-only configuration).
func (l *Loader) Path() string {
	return l.configPath
}

// Load loads configuration with precedence: ENV > File > Defaults, then validates.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()
	cfg.Version = l.version

	if l.configPath != "" {
		fileCfg, err := l.loadFile(l.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		if err := mergeFileConfig(&cfg, fileCfg); err != nil {
			return cfg, fmt.Errorf("merge file config: %w", err)
		}
	}

	l.mergeEnvConfig(&cfg)

	if abs, err := filepath.Abs(cfg.Download.TempDir); err == nil {
		cfg.Download.TempDir = abs
	}
	cfg.Download.AllowedHosts = normalizeHosts(cfg.Download.AllowedHosts)

	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (l *Loader) loadFile(path string) (*FileConfig, error) {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var fileCfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&fileCfg); err != nil {
		if errors.Is(err, io.EOF) {
			return &FileConfig{}, nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return nil, fmt.Errorf("%w: %v", ErrUnknownConfigField, err)
		}
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return &fileCfg, nil
}

func mergeFileConfig(cfg *AppConfig, f *FileConfig) error {
	var err error
	dur := func(field, raw string, dst *time.Duration) {
		if raw == "" || err != nil {
			return
		}
		d, perr := time.ParseDuration(raw)
		if perr != nil {
			err = fmt.Errorf("%s: %w", field, perr)
			return
		}
		*dst = d
	}
	setStr := func(src string, dst *string) {
		if src != "" {
			*dst = src
		}
	}

	setStr(f.LogLevel, &cfg.LogLevel)

	if a := f.API; a != nil {
		setStr(a.ListenAddr, &cfg.API.ListenAddr)
		setStr(a.PublicBaseURL, &cfg.API.PublicBaseURL)
		if len(a.AllowedOrigins) > 0 {
			cfg.API.AllowedOrigins = a.AllowedOrigins
		}
		if len(a.TrustedProxies) > 0 {
			cfg.API.TrustedProxies = a.TrustedProxies
		}
		if a.RateLimitEnabled != nil {
			cfg.API.RateLimitEnabled = *a.RateLimitEnabled
		}
		if a.RateLimitRequests != nil {
			cfg.API.RateLimitRequests = *a.RateLimitRequests
		}
		dur("api.rateLimitWindow", a.RateLimitWindow, &cfg.API.RateLimitWindow)
		dur("api.shutdownTimeout", a.ShutdownTimeout, &cfg.API.ShutdownTimeout)
	}

	if m := f.Metrics; m != nil {
		if m.Enabled != nil {
			cfg.Metrics.Enabled = *m.Enabled
		}
		setStr(m.ListenAddr, &cfg.Metrics.ListenAddr)
	}

	if d := f.Download; d != nil {
		setStr(d.Secret, &cfg.Download.Secret)
		setStr(d.SecretFile, &cfg.Download.SecretFile)
		dur("download.tokenTTL", d.TokenTTL, &cfg.Download.TokenTTL)
		setStr(d.TokenMode, &cfg.Download.TokenMode)
		if d.MaxConcurrent != nil {
			cfg.Download.MaxConcurrent = *d.MaxConcurrent
		}
		if d.QueueLimit != nil {
			cfg.Download.QueueLimit = *d.QueueLimit
		}
		dur("download.gateWaitTimeout", d.GateWaitTimeout, &cfg.Download.GateWaitTimeout)
		setStr(d.TempDir, &cfg.Download.TempDir)
		if len(d.AllowedHosts) > 0 {
			cfg.Download.AllowedHosts = d.AllowedHosts
		}
		setStr(d.DefaultMode, &cfg.Download.DefaultMode)
		dur("download.sweepInterval", d.SweepInterval, &cfg.Download.SweepInterval)
		if d.MaxArtifactBytes != nil {
			cfg.Download.MaxArtifactBytes = *d.MaxArtifactBytes
		}
	}

	if e := f.Extractor; e != nil {
		setStr(e.Bin, &cfg.Extractor.Bin)
		dur("extractor.timeout", e.Timeout, &cfg.Extractor.Timeout)
		if e.RatePerSecond != nil {
			cfg.Extractor.RatePerSecond = *e.RatePerSecond
		}
		if e.Burst != nil {
			cfg.Extractor.Burst = *e.Burst
		}
	}

	if s := f.Store; s != nil {
		setStr(s.Backend, &cfg.Store.Backend)
		setStr(s.Path, &cfg.Store.Path)
	}

	if r := f.Redis; r != nil {
		setStr(r.Addr, &cfg.Redis.Addr)
		setStr(r.Password, &cfg.Redis.Password)
		if r.DB != nil {
			cfg.Redis.DB = *r.DB
		}
	}

	if c := f.Cache; c != nil {
		setStr(c.Backend, &cfg.Cache.Backend)
		dur("cache.metadataTTL", c.MetadataTTL, &cfg.Cache.MetadataTTL)
	}

	if t := f.Telemetry; t != nil {
		if t.Enabled != nil {
			cfg.Telemetry.Enabled = *t.Enabled
		}
		setStr(t.ServiceName, &cfg.Telemetry.ServiceName)
		setStr(t.Exporter, &cfg.Telemetry.Exporter)
		setStr(t.Endpoint, &cfg.Telemetry.Endpoint)
		if t.SamplingRate != nil {
			cfg.Telemetry.SamplingRate = *t.SamplingRate
		}
	}
	return err
}

// Wrapper methods for mechanical connection tracking

func (l *Loader) envString(key, def string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, def)
}

func (l *Loader) envBool(key string, def bool) bool {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, def)
}

func (l *Loader) envInt(key string, def int) int {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, def)
}

func (l *Loader) envInt64(key string, def int64) int64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt64(key, def)
}

func (l *Loader) envFloat(key string, def float64) float64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, def)
}

func (l *Loader) envDuration(key string, def time.Duration) time.Duration {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, def)
}

func (l *Loader) envList(key string, def []string) []string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseList(key, def)
}

func (l *Loader) mergeEnvConfig(cfg *AppConfig) {
	cfg.LogLevel = l.envString("CLIPGATE_LOG_LEVEL", cfg.LogLevel)

	cfg.API.ListenAddr = l.envString("CLIPGATE_LISTEN_ADDR", cfg.API.ListenAddr)
	cfg.API.PublicBaseURL = l.envString("CLIPGATE_PUBLIC_BASE_URL", cfg.API.PublicBaseURL)
	cfg.API.AllowedOrigins = l.envList("CLIPGATE_ALLOWED_ORIGINS", cfg.API.AllowedOrigins)
	cfg.API.TrustedProxies = l.envList("CLIPGATE_TRUSTED_PROXIES", cfg.API.TrustedProxies)
	cfg.API.RateLimitEnabled = l.envBool("CLIPGATE_RATE_LIMIT_ENABLED", cfg.API.RateLimitEnabled)
	cfg.API.RateLimitRequests = l.envInt("CLIPGATE_RATE_LIMIT_REQUESTS", cfg.API.RateLimitRequests)
	cfg.API.RateLimitWindow = l.envDuration("CLIPGATE_RATE_LIMIT_WINDOW", cfg.API.RateLimitWindow)
	cfg.API.ShutdownTimeout = l.envDuration("CLIPGATE_SHUTDOWN_TIMEOUT", cfg.API.ShutdownTimeout)

	cfg.Metrics.Enabled = l.envBool("CLIPGATE_METRICS_ENABLED", cfg.Metrics.Enabled)
	cfg.Metrics.ListenAddr = l.envString("CLIPGATE_METRICS_LISTEN", cfg.Metrics.ListenAddr)

	cfg.Download.Secret = l.envString("CLIPGATE_DOWNLOAD_SECRET", cfg.Download.Secret)
	cfg.Download.SecretFile = l.envString("CLIPGATE_DOWNLOAD_SECRET_FILE", cfg.Download.SecretFile)
	cfg.Download.TokenTTL = l.envDuration("CLIPGATE_TOKEN_TTL", cfg.Download.TokenTTL)
	cfg.Download.TokenMode = l.envString("CLIPGATE_TOKEN_MODE", cfg.Download.TokenMode)
	cfg.Download.MaxConcurrent = l.envInt("CLIPGATE_MAX_CONCURRENT_DOWNLOADS", cfg.Download.MaxConcurrent)
	cfg.Download.QueueLimit = l.envInt("CLIPGATE_GATE_QUEUE_LIMIT", cfg.Download.QueueLimit)
	cfg.Download.GateWaitTimeout = l.envDuration("CLIPGATE_GATE_WAIT_TIMEOUT", cfg.Download.GateWaitTimeout)
	cfg.Download.TempDir = l.envString("CLIPGATE_TEMP_DIR", cfg.Download.TempDir)
	cfg.Download.AllowedHosts = l.envList("CLIPGATE_ALLOWED_HOSTS", cfg.Download.AllowedHosts)
	cfg.Download.DefaultMode = l.envString("CLIPGATE_DEFAULT_MODE", cfg.Download.DefaultMode)
	cfg.Download.SweepInterval = l.envDuration("CLIPGATE_SWEEP_INTERVAL", cfg.Download.SweepInterval)
	cfg.Download.MaxArtifactBytes = l.envInt64("CLIPGATE_MAX_ARTIFACT_BYTES", cfg.Download.MaxArtifactBytes)

	cfg.Extractor.Bin = l.envString("CLIPGATE_EXTRACTOR_BIN", cfg.Extractor.Bin)
	cfg.Extractor.Timeout = l.envDuration("CLIPGATE_EXTRACTOR_TIMEOUT", cfg.Extractor.Timeout)
	cfg.Extractor.RatePerSecond = l.envFloat("CLIPGATE_EXTRACTOR_RPS", cfg.Extractor.RatePerSecond)
	cfg.Extractor.Burst = l.envInt("CLIPGATE_EXTRACTOR_BURST", cfg.Extractor.Burst)

	cfg.Store.Backend = l.envString("CLIPGATE_STORE_BACKEND", cfg.Store.Backend)
	cfg.Store.Path = l.envString("CLIPGATE_STORE_PATH", cfg.Store.Path)

	cfg.Redis.Addr = l.envString("CLIPGATE_REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = l.envString("CLIPGATE_REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = l.envInt("CLIPGATE_REDIS_DB", cfg.Redis.DB)

	cfg.Cache.Backend = l.envString("CLIPGATE_CACHE_BACKEND", cfg.Cache.Backend)
	cfg.Cache.MetadataTTL = l.envDuration("CLIPGATE_METADATA_CACHE_TTL", cfg.Cache.MetadataTTL)

	cfg.Telemetry.Enabled = l.envBool("CLIPGATE_TRACING_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.ServiceName = l.envString("CLIPGATE_TRACING_SERVICE", cfg.Telemetry.ServiceName)
	cfg.Telemetry.Exporter = l.envString("CLIPGATE_TRACING_EXPORTER", cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = l.envString("CLIPGATE_TRACING_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = l.envFloat("CLIPGATE_TRACING_SAMPLE_RATE", cfg.Telemetry.SamplingRate)
}

func normalizeHosts(hosts []string) []string {
	out := make([]string, 0, len(hosts))
	seen := make(map[string]struct{}, len(hosts))
	for _, h := range hosts {
		h = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(h)), ".")
		h = strings.TrimPrefix(h, "www.")
		if h == "" {
			continue
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	return out
}
