// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package lifecycle

import (
	"errors"
	"fmt"

	"github.com/ManuGH/clipgate/internal/domain/session/model"
)

// ErrIllegalTransition is returned for events not allowed in the current state.
var ErrIllegalTransition = errors.New("illegal session transition")

// TransitionError describes a rejected transition.
type TransitionError struct {
	From  model.State
	To    model.State
	Event EventKind
}

func (e *TransitionError) Error() string {
	if e.Event == "" {
		return fmt.Sprintf("%s: %s -> %s", ErrIllegalTransition, e.From, e.To)
	}
	return fmt.Sprintf("%s: %s on %s", ErrIllegalTransition, e.Event, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrIllegalTransition }
