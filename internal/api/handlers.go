// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"net/http"
	"time"

	"github.com/ManuGH/clipgate/internal/domain/session/manager"
	"github.com/ManuGH/clipgate/internal/domain/session/model"
	"github.com/ManuGH/clipgate/internal/domain/session/ports"
	"github.com/ManuGH/clipgate/internal/log"
	"github.com/ManuGH/clipgate/internal/token"
	"github.com/go-chi/chi/v5"
)

type infoRequest struct {
	URL string `json:"url"`
}

type downloadRequest struct {
	URL      string     `json:"url"`
	FormatID string     `json:"formatId,omitempty"`
	Mode     model.Mode `json:"mode,omitempty"`
}

type downloadResponse struct {
	ID          string         `json:"id"`
	Mode        model.Mode     `json:"mode"`
	State       model.State    `json:"state"`
	DownloadURL string         `json:"downloadUrl"`
	EventsURL   string         `json:"eventsUrl"`
	ExpiresAt   time.Time      `json:"expiresAt"`
	Metadata    ports.Metadata `json:"metadata"`
}

// handleInfo resolves metadata for a link without creating a session.
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	var req infoRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	md, err := s.deps.Downloads.Inspect(r.Context(), req.URL)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, md)
}

// handleCreate starts a download session and returns its link.
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req downloadRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	ticket, err := s.deps.Downloads.RequestDownload(r.Context(), manager.Request{
		URL:    req.URL,
		Format: req.FormatID,
		Mode:   req.Mode,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	logger := log.WithComponentFromContext(r.Context(), "api")
	logger.Info().
		Str(log.FieldEvent, "download.created").
		Str(log.FieldSessionID, ticket.ID).
		Str(log.FieldMode, string(ticket.Mode)).
		Msg("download session created")

	w.Header().Set("Location", "/api/download/"+ticket.ID)
	writeJSON(w, http.StatusCreated, downloadResponse{
		ID:          ticket.ID,
		Mode:        ticket.Mode,
		State:       ticket.State,
		DownloadURL: s.downloadURL(ticket.Grant),
		EventsURL:   s.eventsURL(ticket.ID),
		ExpiresAt:   ticket.ExpiresAt.UTC(),
		Metadata:    ticket.Metadata,
	})
}

// handleFile redeems a download link and streams the artifact.
func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	sink := newHTTPSink(w)
	err := s.deps.Downloads.ResolveAndStream(r.Context(), token.RedemptionFromQuery(r.URL.Query()), sink)
	if err == nil {
		return
	}
	if sink.Prepared() {
		// Headers are out; the client sees a truncated body.
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Warn().Err(err).Str(log.FieldEvent, "download.stream_aborted").Msg("delivery ended early")
		return
	}
	s.writeError(w, r, err)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	v, err := s.deps.Downloads.Snapshot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Downloads.Cancel(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
