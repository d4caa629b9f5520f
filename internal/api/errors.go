// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	controlhttp "github.com/ManuGH/clipgate/internal/control/http"
	"github.com/ManuGH/clipgate/internal/control/http/problem"
	"github.com/ManuGH/clipgate/internal/domain/session/manager"
	"github.com/ManuGH/clipgate/internal/log"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, r *http.Request, status int, problemType, title, code, detail string) {
	problem.Write(w, r, status, problemType, title, code, detail, nil)
}

// writeError maps manager errors onto problem responses. Only the sentinel
// messages reach the client; wrapped details are logged.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *manager.ValidationError
	switch {
	case errors.As(err, &verr):
		writeProblem(w, r, http.StatusBadRequest, "request/invalid", "Bad Request", "INVALID_INPUT", verr.Msg)
	case errors.Is(err, manager.ErrValidation):
		writeProblem(w, r, http.StatusBadRequest, "request/invalid", "Bad Request", "INVALID_INPUT", manager.ErrValidation.Error())
	case errors.Is(err, manager.ErrUpstream):
		writeProblem(w, r, http.StatusBadGateway, "upstream/failed", "Bad Gateway", "UPSTREAM_FAILED", manager.ErrUpstream.Error())
	case errors.Is(err, manager.ErrInvalidOrExpired):
		writeProblem(w, r, http.StatusGone, "download/invalid_link", "Gone", "INVALID_LINK", manager.ErrInvalidOrExpired.Error())
	case errors.Is(err, manager.ErrBusy):
		w.Header().Set(controlhttp.HeaderRetryAfter, strconv.Itoa(s.cfg.RetryAfter))
		writeProblem(w, r, http.StatusTooManyRequests, "download/busy", "Too Many Requests", "BUSY", manager.ErrBusy.Error())
	case errors.Is(err, manager.ErrNotReady):
		writeProblem(w, r, http.StatusConflict, "download/not_ready", "Conflict", "NOT_READY", manager.ErrNotReady.Error())
	case errors.Is(err, manager.ErrDelivering):
		writeProblem(w, r, http.StatusConflict, "download/delivering", "Conflict", "DELIVERING", manager.ErrDelivering.Error())
	case errors.Is(err, manager.ErrNotFound):
		writeProblem(w, r, http.StatusNotFound, "download/not_found", "Not Found", "NOT_FOUND", manager.ErrNotFound.Error())
	case errors.Is(err, manager.ErrShuttingDown):
		w.Header().Set(controlhttp.HeaderRetryAfter, strconv.Itoa(s.cfg.RetryAfter))
		writeProblem(w, r, http.StatusServiceUnavailable, "system/unavailable", "Service Unavailable", "SHUTTING_DOWN", manager.ErrShuttingDown.Error())
	case r.Context().Err() != nil:
		// Client went away; nobody reads the response.
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Debug().Err(err).Msg("request cancelled by client")
	default:
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().Err(err).Str(log.FieldEvent, "api.internal_error").Msg("unhandled error")
		writeProblem(w, r, http.StatusInternalServerError, "system/internal", "Internal Server Error", "INTERNAL", "An unexpected error occurred")
	}
}

// decodeJSON reads a bounded JSON body into dst. It writes the problem
// response itself and reports whether the handler may continue.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeProblem(w, r, http.StatusRequestEntityTooLarge, "request/too_large", "Payload Too Large", "BODY_TOO_LARGE", "request body too large")
			return false
		}
		writeProblem(w, r, http.StatusBadRequest, "request/invalid_body", "Bad Request", "INVALID_BODY", "request body must be a JSON object with known fields")
		return false
	}
	if dec.More() {
		writeProblem(w, r, http.StatusBadRequest, "request/invalid_body", "Bad Request", "INVALID_BODY", "request body must contain a single JSON object")
		return false
	}
	return true
}
