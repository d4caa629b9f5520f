// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID = "session_id"
	FieldRequestID = "request_id"
	FieldJobID     = "job_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldMode      = "mode"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Source fields. Never attach full URLs with query strings.
	FieldSourceHost = "source_host"
	FieldPath       = "path"

	// Transfer fields
	FieldBytes    = "bytes"
	FieldDuration = "duration_ms"
)
