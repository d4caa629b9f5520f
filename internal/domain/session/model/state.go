// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package model

// State is the lifecycle state of a download session.
type State string

const (
	StatePending    State = "pending"
	StateAdmitted   State = "admitted"
	StateInProgress State = "in_progress"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateExpired    State = "expired"
	StateCancelled  State = "cancelled"

	// StateNotFound is a pseudo-state reported to observers of a session
	// that no longer exists. It is never stored.
	StateNotFound State = "not_found"
)

// IsTerminal returns true if the state is a final state.
func (s State) IsTerminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateExpired, StateCancelled, StateNotFound:
		return true
	}
	return false
}

// IsActive returns true while a gate permit is held for the session.
func (s State) IsActive() bool {
	return s == StateAdmitted || s == StateInProgress
}

// Valid reports whether s is a storable state.
func (s State) Valid() bool {
	switch s {
	case StatePending, StateAdmitted, StateInProgress, StateCompleted, StateFailed, StateExpired, StateCancelled:
		return true
	}
	return false
}

// Mode selects how a session produces and delivers its artifact.
type Mode string

const (
	// ModeFetch extracts the artifact while the request is served; the client
	// pulls it with the returned link and it is deleted after delivery.
	ModeFetch Mode = "fetch"
	// ModeQueued returns immediately and extracts in the background while the
	// client follows progress.
	ModeQueued Mode = "queued"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeFetch || m == ModeQueued
}

// ReasonCode classifies why a session failed or ended early.
type ReasonCode string

const (
	RNone            ReasonCode = ""
	RUpstreamFailed  ReasonCode = "upstream_failed"
	RStreamAborted   ReasonCode = "stream_aborted"
	RClientCancelled ReasonCode = "client_cancelled"
	RTTLElapsed      ReasonCode = "ttl_elapsed"
	RArtifactMissing ReasonCode = "artifact_missing"
	RTooLarge        ReasonCode = "too_large"
	RShutdown        ReasonCode = "shutdown"
	RServerBusy      ReasonCode = "server_busy"
)

// PublicMessage returns the client-safe text for a reason.
func (r ReasonCode) PublicMessage() string {
	switch r {
	case RUpstreamFailed:
		return "could not process this link"
	case RStreamAborted:
		return "transfer was interrupted"
	case RClientCancelled:
		return "download was cancelled"
	case RTTLElapsed:
		return "download link expired"
	case RArtifactMissing:
		return "file is no longer available"
	case RTooLarge:
		return "file exceeds the size limit"
	case RShutdown:
		return "server interrupted the download"
	case RServerBusy:
		return "server is busy, try again later"
	default:
		return ""
	}
}
