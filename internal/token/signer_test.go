// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package token

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

func newTestSigner(t *testing.T, secret string) *Signer {
	t.Helper()
	s, err := NewSigner([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestNewSignerRejectsEmptySecret(t *testing.T) {
	_, err := NewSigner(nil)
	require.ErrorIs(t, err, ErrEmptySecret)
}

func TestSignerProperties(t *testing.T) {
	s := newTestSigner(t, "0123456789abcdef0123456789abcdef")
	other := newTestSigner(t, "fedcba9876543210fedcba9876543210")

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("signatures verify", prop.ForAll(
		func(id string, ms int64) bool {
			exp := time.UnixMilli(ms)
			return s.Verify(id, exp, s.Sign(id, exp))
		},
		gen.AlphaString(),
		gen.Int64Range(1, 1<<45),
	))

	properties.Property("signing is deterministic", prop.ForAll(
		func(id string, ms int64) bool {
			exp := time.UnixMilli(ms)
			return s.Sign(id, exp) == s.Sign(id, exp)
		},
		gen.AlphaString(),
		gen.Int64Range(1, 1<<45),
	))

	properties.Property("changed expiry is rejected", prop.ForAll(
		func(id string, ms int64, delta int64) bool {
			sig := s.Sign(id, time.UnixMilli(ms))
			return !s.Verify(id, time.UnixMilli(ms+delta), sig)
		},
		gen.AlphaString(),
		gen.Int64Range(1, 1<<45),
		gen.Int64Range(1, 1<<20),
	))

	properties.Property("changed payload is rejected", prop.ForAll(
		func(id string, ms int64) bool {
			exp := time.UnixMilli(ms)
			return !s.Verify(id+"x", exp, s.Sign(id, exp))
		},
		gen.AlphaString(),
		gen.Int64Range(1, 1<<45),
	))

	properties.Property("other keys are rejected", prop.ForAll(
		func(id string, ms int64) bool {
			exp := time.UnixMilli(ms)
			return !other.Verify(id, exp, s.Sign(id, exp))
		},
		gen.AlphaString(),
		gen.Int64Range(1, 1<<45),
	))

	properties.TestingRun(t)
}

func TestSignerRejectsMalformedSignature(t *testing.T) {
	s := newTestSigner(t, "0123456789abcdef0123456789abcdef")
	exp := time.UnixMilli(1_700_000_000_000)

	for _, sig := range []string{"", "!!!", "c2hvcnQ", s.Sign("id", exp) + "AA"} {
		require.False(t, s.Verify("id", exp, sig), "signature %q", sig)
	}
}

func TestSignerFlippedByte(t *testing.T) {
	s := newTestSigner(t, "0123456789abcdef0123456789abcdef")
	exp := time.UnixMilli(1_700_000_000_000)
	sig := []byte(s.Sign("session", exp))

	for i := range sig {
		mutated := append([]byte(nil), sig...)
		if mutated[i] == 'A' {
			mutated[i] = 'B'
		} else {
			mutated[i] = 'A'
		}
		require.False(t, s.Verify("session", exp, string(mutated)), "position %d", i)
	}
}
