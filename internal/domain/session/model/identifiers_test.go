// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSessionID(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id, err := NewSessionID()
		require.NoError(t, err)
		require.True(t, IsSafeSessionID(id), id)
		_, dup := seen[id]
		require.False(t, dup)
		seen[id] = struct{}{}
	}
}

func TestIsSafeSessionID(t *testing.T) {
	for _, id := range []string{"", "..", "../etc", "abc", "ABCDEF", "a/b"} {
		assert.False(t, IsSafeSessionID(id), id)
	}
}

func TestStateClassification(t *testing.T) {
	for _, s := range []State{StateCompleted, StateFailed, StateExpired, StateCancelled, StateNotFound} {
		assert.True(t, s.IsTerminal(), s)
	}
	for _, s := range []State{StatePending, StateAdmitted, StateInProgress} {
		assert.False(t, s.IsTerminal(), s)
	}
	assert.True(t, StateAdmitted.IsActive())
	assert.False(t, StatePending.IsActive())
	assert.False(t, StateNotFound.Valid())
}

func TestSessionIsExpired(t *testing.T) {
	now := time.Now()
	s := &Session{ExpiresAt: now}
	assert.True(t, s.IsExpired(now))
	assert.False(t, s.IsExpired(now.Add(-time.Millisecond)))
}
