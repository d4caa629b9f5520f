// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package daemon

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// ServerConfig holds the HTTP listener settings.
//
// There is no write timeout: file downloads and event streams stay open for
// as long as the transfer takes.
type ServerConfig struct {
	ListenAddr        string
	ReadHeaderTimeout time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	ShutdownTimeout   time.Duration
}

// DefaultServerConfig returns listener settings for addr.
func DefaultServerConfig(addr string, shutdown time.Duration) ServerConfig {
	if shutdown <= 0 {
		shutdown = 15 * time.Second
	}
	return ServerConfig{
		ListenAddr:        addr,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		ShutdownTimeout:   shutdown,
	}
}

// Deps contains the collaborators of the server manager.
type Deps struct {
	Logger zerolog.Logger

	APIHandler http.Handler

	// MetricsHandler and MetricsAddr are optional; both must be set for the
	// metrics listener to start.
	MetricsHandler http.Handler
	MetricsAddr    string
}

// Validate checks that required dependencies are set.
func (d Deps) Validate() error {
	if d.Logger.GetLevel() == zerolog.Disabled {
		return ErrMissingLogger
	}
	if d.APIHandler == nil {
		return ErrMissingAPIHandler
	}
	return nil
}
