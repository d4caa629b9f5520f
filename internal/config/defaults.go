// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"os"
	"path/filepath"
	"time"
)

// DefaultAllowedHosts is the built-in source allow-list.
var DefaultAllowedHosts = []string{"tiktok.com", "instagram.com", "facebook.com", "fb.watch"}

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	return AppConfig{
		LogLevel: "info",
		API: APIConfig{
			ListenAddr:        ":8088",
			RateLimitEnabled:  true,
			RateLimitRequests: 100,
			RateLimitWindow:   5 * time.Minute,
			ShutdownTimeout:   15 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:    true,
			ListenAddr: ":9098",
		},
		Download: DownloadConfig{
			TokenTTL:      10 * time.Minute,
			TokenMode:     TokenModeSigned,
			MaxConcurrent: 2,
			TempDir:       filepath.Join(os.TempDir(), "clipgate"),
			AllowedHosts:  append([]string(nil), DefaultAllowedHosts...),
			DefaultMode:   ModeFetch,
			SweepInterval: time.Minute,
		},
		Extractor: ExtractorConfig{
			Bin:           "yt-dlp",
			Timeout:       10 * time.Minute,
			RatePerSecond: 2,
			Burst:         4,
		},
		Store: StoreConfig{Backend: BackendMemory},
		Cache: CacheConfig{
			Backend:     BackendMemory,
			MetadataTTL: 5 * time.Minute,
		},
		Telemetry: TelemetryConfig{
			ServiceName:  "clipgate",
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
		},
	}
}
