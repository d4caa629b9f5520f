// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package http holds the header and field names shared by the API handlers,
// middleware and problem writer.
package http

// Canonical Header Names
const (
	// HeaderRequestID is the canonical header for request correlation.
	HeaderRequestID = "X-Request-ID"
	// HeaderRetryAfter tells clients when a busy or rate limited call may be retried.
	HeaderRetryAfter = "Retry-After"
)

// Canonical JSON Field Names
const (
	// JSONKeyRequestID is the canonical JSON key for request correlation in DTOs.
	JSONKeyRequestID = "requestId"
)
