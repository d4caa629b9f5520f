// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package manager

import (
	"errors"
	"fmt"

	"github.com/ManuGH/clipgate/internal/control/admission"
)

// Error classes returned by the manager. The transport maps them to status
// codes with errors.Is; messages are safe to show to clients.
var (
	ErrValidation       = errors.New("invalid request")
	ErrUpstream         = errors.New("could not process this link")
	ErrInvalidOrExpired = errors.New("invalid or expired download link")
	ErrBusy             = errors.New("server is busy, try again later")
	ErrNotReady         = errors.New("download is not ready yet")
	ErrNotFound         = errors.New("download not found")
	ErrDelivering       = errors.New("download is being delivered")
	ErrShuttingDown     = errors.New("server is shutting down")
)

// ValidationError carries a client-safe explanation of a rejected request.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// Cancellation causes attached to job contexts.
var (
	errCancelled = errors.New("cancelled by client")
	errExpired   = errors.New("session ttl elapsed")
	errShutdown  = errors.New("manager shutting down")
	errLeaseLost = errors.New("delivery lease lost")
)

// gateError maps admission failures onto the manager's classes.
func gateError(err error) error {
	if errors.Is(err, admission.ErrBusy) || errors.Is(err, admission.ErrWaitTimeout) {
		return ErrBusy
	}
	return err
}

// errorType labels err for spans and metrics.
func errorType(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrUpstream):
		return "upstream"
	case errors.Is(err, ErrBusy):
		return "busy"
	case errors.Is(err, ErrInvalidOrExpired):
		return "invalid_link"
	case errors.Is(err, ErrShuttingDown):
		return "shutting_down"
	default:
		return "internal"
	}
}
