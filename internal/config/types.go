// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import "time"

// Token strategies.
const (
	TokenModeSigned = "signed"
	TokenModeSealed = "sealed"
)

// Delivery modes.
const (
	ModeFetch  = "fetch"
	ModeQueued = "queued"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendSqlite = "sqlite"
	BackendBadger = "badger"
	BackendRedis  = "redis"
)

// AppConfig is the fully resolved runtime configuration.
type AppConfig struct {
	Version   string
	LogLevel  string
	API       APIConfig
	Metrics   MetricsConfig
	Download  DownloadConfig
	Extractor ExtractorConfig
	Store     StoreConfig
	Redis     RedisConfig
	Cache     CacheConfig
	Telemetry TelemetryConfig
}

// APIConfig configures the public HTTP listener.
type APIConfig struct {
	ListenAddr        string
	PublicBaseURL     string // optional; used to build absolute download links
	AllowedOrigins    []string
	TrustedProxies    []string // CIDRs or IPs allowed to set X-Forwarded-*
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration
	ShutdownTimeout   time.Duration
}

// MetricsConfig configures the Prometheus listener.
type MetricsConfig struct {
	Enabled    bool
	ListenAddr string
}

// DownloadConfig holds the session, token and gate settings.
type DownloadConfig struct {
	Secret           string
	SecretFile       string
	TokenTTL         time.Duration
	TokenMode        string
	MaxConcurrent    int
	QueueLimit       int
	GateWaitTimeout  time.Duration
	TempDir          string
	AllowedHosts     []string
	DefaultMode      string
	SweepInterval    time.Duration
	MaxArtifactBytes int64
}

// ExtractorConfig configures the external extraction tool.
type ExtractorConfig struct {
	Bin           string
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
}

// StoreConfig selects the session registry backend.
type StoreConfig struct {
	Backend string
	Path    string
}

// RedisConfig is shared by the redis store, bus and cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// CacheConfig configures the metadata cache.
type CacheConfig struct {
	Backend     string
	MetadataTTL time.Duration
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool
	ServiceName  string
	Exporter     string
	Endpoint     string
	SamplingRate float64
}

// FileConfig is the YAML file representation. Durations are Go duration strings.
type FileConfig struct {
	LogLevel  string               `yaml:"logLevel,omitempty"`
	API       *FileAPIConfig       `yaml:"api,omitempty"`
	Metrics   *FileMetricsConfig   `yaml:"metrics,omitempty"`
	Download  *FileDownloadConfig  `yaml:"download,omitempty"`
	Extractor *FileExtractorConfig `yaml:"extractor,omitempty"`
	Store     *FileStoreConfig     `yaml:"store,omitempty"`
	Redis     *FileRedisConfig     `yaml:"redis,omitempty"`
	Cache     *FileCacheConfig     `yaml:"cache,omitempty"`
	Telemetry *FileTelemetryConfig `yaml:"telemetry,omitempty"`
}

type FileAPIConfig struct {
	ListenAddr        string   `yaml:"listenAddr,omitempty"`
	PublicBaseURL     string   `yaml:"publicBaseURL,omitempty"`
	AllowedOrigins    []string `yaml:"allowedOrigins,omitempty"`
	TrustedProxies    []string `yaml:"trustedProxies,omitempty"`
	RateLimitEnabled  *bool    `yaml:"rateLimitEnabled,omitempty"`
	RateLimitRequests *int     `yaml:"rateLimitRequests,omitempty"`
	RateLimitWindow   string   `yaml:"rateLimitWindow,omitempty"`
	ShutdownTimeout   string   `yaml:"shutdownTimeout,omitempty"`
}

type FileMetricsConfig struct {
	Enabled    *bool  `yaml:"enabled,omitempty"`
	ListenAddr string `yaml:"listenAddr,omitempty"`
}

type FileDownloadConfig struct {
	Secret           string   `yaml:"secret,omitempty"`
	SecretFile       string   `yaml:"secretFile,omitempty"`
	TokenTTL         string   `yaml:"tokenTTL,omitempty"`
	TokenMode        string   `yaml:"tokenMode,omitempty"`
	MaxConcurrent    *int     `yaml:"maxConcurrent,omitempty"`
	QueueLimit       *int     `yaml:"queueLimit,omitempty"`
	GateWaitTimeout  string   `yaml:"gateWaitTimeout,omitempty"`
	TempDir          string   `yaml:"tempDir,omitempty"`
	AllowedHosts     []string `yaml:"allowedHosts,omitempty"`
	DefaultMode      string   `yaml:"defaultMode,omitempty"`
	SweepInterval    string   `yaml:"sweepInterval,omitempty"`
	MaxArtifactBytes *int64   `yaml:"maxArtifactBytes,omitempty"`
}

type FileExtractorConfig struct {
	Bin           string   `yaml:"bin,omitempty"`
	Timeout       string   `yaml:"timeout,omitempty"`
	RatePerSecond *float64 `yaml:"ratePerSecond,omitempty"`
	Burst         *int     `yaml:"burst,omitempty"`
}

type FileStoreConfig struct {
	Backend string `yaml:"backend,omitempty"`
	Path    string `yaml:"path,omitempty"`
}

type FileRedisConfig struct {
	Addr     string `yaml:"addr,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       *int   `yaml:"db,omitempty"`
}

type FileCacheConfig struct {
	Backend     string `yaml:"backend,omitempty"`
	MetadataTTL string `yaml:"metadataTTL,omitempty"`
}

type FileTelemetryConfig struct {
	Enabled      *bool    `yaml:"enabled,omitempty"`
	ServiceName  string   `yaml:"serviceName,omitempty"`
	Exporter     string   `yaml:"exporter,omitempty"`
	Endpoint     string   `yaml:"endpoint,omitempty"`
	SamplingRate *float64 `yaml:"samplingRate,omitempty"`
}
