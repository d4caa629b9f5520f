// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"net"
	"strings"

	"github.com/ManuGH/clipgate/internal/validate"
)

// MinSecretLength is the minimum accepted length of an explicit signing secret.
const MinSecretLength = 16

// Validate validates an AppConfig using the centralized validation package
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.ListenAddr("API.ListenAddr", cfg.API.ListenAddr)
	if strings.TrimSpace(cfg.API.PublicBaseURL) != "" {
		v.URL("API.PublicBaseURL", cfg.API.PublicBaseURL, []string{"http", "https"})
	}
	if cfg.API.RateLimitEnabled {
		v.Range("API.RateLimitRequests", cfg.API.RateLimitRequests, 1, 1_000_000)
		v.Positive("API.RateLimitWindow", cfg.API.RateLimitWindow)
	}
	v.Positive("API.ShutdownTimeout", cfg.API.ShutdownTimeout)
	for _, p := range cfg.API.TrustedProxies {
		if _, _, err := net.ParseCIDR(p); err != nil && net.ParseIP(p) == nil {
			v.AddError("API.TrustedProxies", "must be an IP or CIDR", p)
		}
	}

	if cfg.Metrics.Enabled {
		v.ListenAddr("Metrics.ListenAddr", cfg.Metrics.ListenAddr)
	}

	d := cfg.Download
	if d.Secret != "" && len(d.Secret) < MinSecretLength {
		v.AddError("Download.Secret", "secret is too short", "[redacted]")
	}
	v.Positive("Download.TokenTTL", d.TokenTTL)
	v.OneOf("Download.TokenMode", d.TokenMode, []string{TokenModeSigned, TokenModeSealed})
	v.Range("Download.MaxConcurrent", d.MaxConcurrent, 1, 64)
	v.Range("Download.QueueLimit", d.QueueLimit, 0, 10_000)
	if d.GateWaitTimeout < 0 {
		v.AddError("Download.GateWaitTimeout", "must not be negative", d.GateWaitTimeout)
	}
	v.Directory("Download.TempDir", d.TempDir, false)
	if len(d.AllowedHosts) == 0 {
		v.AddError("Download.AllowedHosts", "at least one host is required", d.AllowedHosts)
	}
	v.OneOf("Download.DefaultMode", d.DefaultMode, []string{ModeFetch, ModeQueued})
	v.Positive("Download.SweepInterval", d.SweepInterval)
	if d.MaxArtifactBytes < 0 {
		v.AddError("Download.MaxArtifactBytes", "must not be negative", d.MaxArtifactBytes)
	}

	v.NotEmpty("Extractor.Bin", cfg.Extractor.Bin)
	v.Positive("Extractor.Timeout", cfg.Extractor.Timeout)
	if cfg.Extractor.RatePerSecond < 0 {
		v.AddError("Extractor.RatePerSecond", "must not be negative", cfg.Extractor.RatePerSecond)
	}
	if cfg.Extractor.RatePerSecond > 0 && cfg.Extractor.Burst < 1 {
		v.AddError("Extractor.Burst", "must be at least 1 when rate limiting is enabled", cfg.Extractor.Burst)
	}

	v.OneOf("Store.Backend", cfg.Store.Backend, []string{BackendMemory, BackendSqlite, BackendBadger, BackendRedis})
	switch cfg.Store.Backend {
	case BackendSqlite, BackendBadger:
		v.NotEmpty("Store.Path", cfg.Store.Path)
	case BackendRedis:
		v.NotEmpty("Redis.Addr", cfg.Redis.Addr)
	}

	v.OneOf("Cache.Backend", cfg.Cache.Backend, []string{BackendMemory, BackendRedis})
	if cfg.Cache.Backend == BackendRedis {
		v.NotEmpty("Redis.Addr", cfg.Redis.Addr)
	}
	if cfg.Cache.MetadataTTL < 0 {
		v.AddError("Cache.MetadataTTL", "must not be negative", cfg.Cache.MetadataTTL)
	}

	if cfg.Telemetry.Enabled {
		v.OneOf("Telemetry.Exporter", cfg.Telemetry.Exporter, []string{"grpc", "http"})
		v.NotEmpty("Telemetry.Endpoint", cfg.Telemetry.Endpoint)
		if cfg.Telemetry.SamplingRate < 0 || cfg.Telemetry.SamplingRate > 1 {
			v.AddError("Telemetry.SamplingRate", "must be between 0 and 1", cfg.Telemetry.SamplingRate)
		}
	}

	return v.Err()
}
