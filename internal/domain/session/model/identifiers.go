// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package model

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
)

// SessionIDBytes is the amount of randomness in a session id.
const SessionIDBytes = 32

var sessionIDRe = regexp.MustCompile(`^[a-f0-9]{64}$`)

// NewSessionID returns a fresh 256-bit random id, hex encoded.
func NewSessionID() (string, error) {
	b := make([]byte, SessionIDBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// IsSafeSessionID returns true if the ID has the generated shape and is
// therefore safe for filesystem paths and URLs.
func IsSafeSessionID(id string) bool {
	return sessionIDRe.MatchString(id)
}
