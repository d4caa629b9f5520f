// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package lifecycle owns the download session state machine.
package lifecycle

import (
	"time"

	"github.com/ManuGH/clipgate/internal/domain/session/model"
)

// Event is a lifecycle event with its optional failure reason.
type Event struct {
	Kind   EventKind
	Reason model.ReasonCode
}

// Apply validates ev against the table and mutates rec accordingly.
// Terminal states never change back; the only edge out of a terminal
// state is completed -> expired for uncollected artifacts.
func Apply(rec *model.Session, ev Event, now time.Time) error {
	tr, ok := TransitionFor(rec.State, ev.Kind)
	if !ok {
		return &TransitionError{From: rec.State, Event: ev.Kind}
	}
	rec.State = tr.To
	rec.UpdatedAt = now

	switch tr.To {
	case model.StateCompleted:
		rec.Progress = rec.Progress.Complete()
		rec.Reason = model.RNone
		rec.Error = ""
	case model.StateFailed, model.StateCancelled, model.StateExpired:
		reason := ev.Reason
		if reason == model.RNone {
			switch tr.To {
			case model.StateExpired:
				reason = model.RTTLElapsed
			case model.StateCancelled:
				reason = model.RClientCancelled
			default:
				reason = model.RUpstreamFailed
			}
		}
		rec.Reason = reason
		if tr.To == model.StateFailed {
			rec.Error = reason.PublicMessage()
		}
		rec.Progress.SpeedBps = 0
		rec.Progress.ETASeconds = 0
	}
	return nil
}

// NewSession builds a pending session record.
func NewSession(id, sourceURL, host, format string, mode model.Mode, now time.Time, ttl time.Duration) *model.Session {
	return &model.Session{
		ID:         id,
		SourceURL:  sourceURL,
		SourceHost: host,
		Format:     format,
		Mode:       mode,
		State:      model.StatePending,
		CreatedAt:  now,
		UpdatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
}
