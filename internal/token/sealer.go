// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package token

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	nonceSize = 12
	tagSize   = 16
)

// ErrEnvelope is returned by Open for any malformed or tampered envelope.
var ErrEnvelope = errors.New("token: invalid envelope")

// Sealer encrypts small JSON documents with AES-256-GCM.
// The envelope layout is base64url(nonce || tag || ciphertext).
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer derives the encryption key from secret.
func NewSealer(secret []byte) (*Sealer, error) {
	k, err := DeriveKey(secret, purposeSeal)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(k[:])
	if err != nil {
		return nil, fmt.Errorf("token: cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("token: gcm: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// Seal encodes v as JSON and encrypts it under a fresh random nonce.
func (s *Sealer) Seal(v any) (string, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("token: marshal: %w", err)
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("token: nonce: %w", err)
	}
	sealed := s.aead.Seal(nil, nonce, plaintext, nil)
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	out := make([]byte, 0, nonceSize+tagSize+len(ct))
	out = append(out, nonce...)
	out = append(out, tag...)
	out = append(out, ct...)
	return base64.RawURLEncoding.EncodeToString(out), nil
}

// Open authenticates and decrypts envelope into v. It fails closed: no
// partial plaintext is ever decoded.
func (s *Sealer) Open(envelope string, v any) error {
	raw, err := base64.RawURLEncoding.Strict().DecodeString(envelope)
	if err != nil || len(raw) < nonceSize+tagSize {
		return ErrEnvelope
	}
	nonce := raw[:nonceSize]
	tag := raw[nonceSize : nonceSize+tagSize]
	ct := raw[nonceSize+tagSize:]

	buf := make([]byte, 0, len(ct)+tagSize)
	buf = append(buf, ct...)
	buf = append(buf, tag...)

	plaintext, err := s.aead.Open(nil, nonce, buf, nil)
	if err != nil {
		return ErrEnvelope
	}
	if err := json.Unmarshal(plaintext, v); err != nil {
		return ErrEnvelope
	}
	return nil
}
