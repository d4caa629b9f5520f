// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package manager

import (
	"time"

	"github.com/ManuGH/clipgate/internal/domain/session/model"
)

// View is the client-facing projection of a session. It never carries the
// source URL or artifact path.
type View struct {
	ID         string         `json:"id"`
	State      model.State    `json:"state"`
	Mode       model.Mode     `json:"mode,omitempty"`
	Title      string         `json:"title,omitempty"`
	FileName   string         `json:"fileName,omitempty"`
	SourceHost string         `json:"sourceHost,omitempty"`
	Progress   model.Progress `json:"progress"`
	ETA        string         `json:"eta"`
	Speed      string         `json:"speed"`
	Downloaded string         `json:"downloaded"`
	Total      string         `json:"total,omitempty"`
	SizeBytes  int64          `json:"sizeBytes,omitempty"`
	Error      string         `json:"error,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
	ExpiresAt  time.Time      `json:"expiresAt"`
}

// ViewOf projects rec at now. A session past its expiry reads as expired
// before the sweeper has removed it, unless it already failed or was cancelled.
func ViewOf(rec *model.Session, now time.Time) View {
	state := rec.State
	if rec.IsExpired(now) && state != model.StateFailed && state != model.StateCancelled {
		state = model.StateExpired
	}
	v := View{
		ID:         rec.ID,
		State:      state,
		Mode:       rec.Mode,
		Title:      rec.Title,
		FileName:   rec.ArtifactName,
		SourceHost: rec.SourceHost,
		Progress:   rec.Progress,
		ETA:        model.ETAText(rec.Progress.ETASeconds),
		Speed:      model.SpeedText(rec.Progress.SpeedBps),
		Downloaded: model.BytesText(rec.Progress.BytesDone),
		SizeBytes:  rec.SizeBytes,
		Error:      rec.Error,
		CreatedAt:  rec.CreatedAt,
		ExpiresAt:  rec.ExpiresAt,
	}
	if rec.Progress.BytesTotal > 0 {
		v.Total = model.BytesText(rec.Progress.BytesTotal)
	}
	return v
}

// NotFoundView is reported for sessions that no longer exist.
func NotFoundView(id string) View {
	return View{ID: id, State: model.StateNotFound, ETA: model.ETAText(0), Speed: model.SpeedText(0), Downloaded: model.BytesText(0)}
}
