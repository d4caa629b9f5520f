// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package token

import (
	"crypto/sha256"
	"errors"
)

// KeySize is the size of every derived key in bytes.
const KeySize = 32

// ErrEmptySecret is returned when key material is missing.
var ErrEmptySecret = errors.New("token: empty secret")

// Key is a derived 256-bit key.
type Key [KeySize]byte

// DeriveKey derives a purpose-bound key from the configured secret.
// Distinct purposes yield independent keys from the same secret.
func DeriveKey(secret []byte, purpose string) (Key, error) {
	if len(secret) == 0 {
		return Key{}, ErrEmptySecret
	}
	h := sha256.New()
	h.Write([]byte("clipgate/"))
	h.Write([]byte(purpose))
	h.Write([]byte{0})
	h.Write(secret)
	var k Key
	copy(k[:], h.Sum(nil))
	return k, nil
}

const (
	purposeSign = "sign"
	purposeSeal = "seal"
)
