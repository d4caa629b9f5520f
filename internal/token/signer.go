// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"time"
)

// Decoding is strict so non-canonical encodings of a valid signature are rejected.
var sigEncoding = base64.RawURLEncoding.Strict()

// Signer computes and checks HMAC-SHA256 signatures over (payload, expiry).
type Signer struct {
	key Key
}

// NewSigner derives the signing key from secret.
func NewSigner(secret []byte) (*Signer, error) {
	k, err := DeriveKey(secret, purposeSign)
	if err != nil {
		return nil, err
	}
	return &Signer{key: k}, nil
}

// Sign returns the base64url signature of payload bound to expiresAt.
// The same inputs always produce the same signature.
func (s *Signer) Sign(payload string, expiresAt time.Time) string {
	return base64.RawURLEncoding.EncodeToString(s.mac(payload, expiresAt.UnixMilli()))
}

// Verify reports whether signature matches payload and expiresAt.
// Malformed signatures are rejected without comparing.
func (s *Signer) Verify(payload string, expiresAt time.Time, signature string) bool {
	return s.verifyMillis(payload, expiresAt.UnixMilli(), signature)
}

func (s *Signer) verifyMillis(payload string, expiresAtMillis int64, signature string) bool {
	got, err := sigEncoding.DecodeString(signature)
	if err != nil || len(got) != sha256.Size {
		return false
	}
	return hmac.Equal(got, s.mac(payload, expiresAtMillis))
}

func (s *Signer) mac(payload string, expiresAtMillis int64) []byte {
	m := hmac.New(sha256.New, s.key[:])
	m.Write([]byte(payload))
	m.Write([]byte{':'})
	m.Write([]byte(strconv.FormatInt(expiresAtMillis, 10)))
	return m.Sum(nil)
}
