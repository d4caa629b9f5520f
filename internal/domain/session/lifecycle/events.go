// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package lifecycle

// EventKind names a lifecycle event.
type EventKind string

const (
	EvAdmitted  EventKind = "admitted"
	EvStarted   EventKind = "started"
	EvCompleted EventKind = "completed"
	EvFailed    EventKind = "failed"
	EvExpired   EventKind = "expired"
	EvCancelled EventKind = "cancelled"
)
