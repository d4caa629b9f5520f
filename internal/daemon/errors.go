// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package daemon

import "errors"

var (
	// ErrMissingLogger is returned when no logger is provided.
	ErrMissingLogger = errors.New("daemon: logger is required")

	// ErrMissingAPIHandler is returned when no API handler is provided.
	ErrMissingAPIHandler = errors.New("daemon: API handler is required")

	// ErrMissingManager is returned when the download manager is absent.
	ErrMissingManager = errors.New("daemon: download manager is required")

	// ErrManagerNotStarted is returned when Shutdown runs before Start.
	ErrManagerNotStarted = errors.New("daemon: manager not started")
)
