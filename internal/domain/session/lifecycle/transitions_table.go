// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package lifecycle

import "github.com/ManuGH/clipgate/internal/domain/session/model"

// Transition is a single allowed edge in the lifecycle state machine.
type Transition struct {
	From  model.State
	To    model.State
	Event EventKind
}

var transitionsTable = []Transition{
	// Admission
	{From: model.StatePending, To: model.StateAdmitted, Event: EvAdmitted},

	// Work starts (fetch-mode extraction may start without a separate admission record)
	{From: model.StatePending, To: model.StateInProgress, Event: EvStarted},
	{From: model.StateAdmitted, To: model.StateInProgress, Event: EvStarted},

	// Success
	{From: model.StateInProgress, To: model.StateCompleted, Event: EvCompleted},

	// Failure
	{From: model.StatePending, To: model.StateFailed, Event: EvFailed},
	{From: model.StateAdmitted, To: model.StateFailed, Event: EvFailed},
	{From: model.StateInProgress, To: model.StateFailed, Event: EvFailed},

	// TTL
	{From: model.StatePending, To: model.StateExpired, Event: EvExpired},
	{From: model.StateAdmitted, To: model.StateExpired, Event: EvExpired},
	{From: model.StateInProgress, To: model.StateExpired, Event: EvExpired},
	// A completed artifact that was never collected still expires.
	{From: model.StateCompleted, To: model.StateExpired, Event: EvExpired},

	// Cancellation
	{From: model.StatePending, To: model.StateCancelled, Event: EvCancelled},
	{From: model.StateAdmitted, To: model.StateCancelled, Event: EvCancelled},
	{From: model.StateInProgress, To: model.StateCancelled, Event: EvCancelled},
}

// TransitionFor returns the allowed transition for a given state+event.
func TransitionFor(from model.State, ev EventKind) (Transition, bool) {
	for _, tr := range transitionsTable {
		if tr.From == from && tr.Event == ev {
			return tr, true
		}
	}
	return Transition{}, false
}

// Transitions returns a copy of the transition table.
func Transitions() []Transition {
	out := make([]Transition, len(transitionsTable))
	copy(out, transitionsTable)
	return out
}

// CanTransition returns nil if some event moves a session from one state to
// the other, and a *TransitionError otherwise.
func CanTransition(from, to model.State) error {
	for _, tr := range transitionsTable {
		if tr.From == from && tr.To == to {
			return nil
		}
	}
	return &TransitionError{From: from, To: to}
}
