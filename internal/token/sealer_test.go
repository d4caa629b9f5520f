// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package token

import (
	"encoding/base64"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

type sealedDoc struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

func newTestSealer(t *testing.T) *Sealer {
	t.Helper()
	s, err := NewSealer([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	return s
}

func TestSealerProperties(t *testing.T) {
	s := newTestSealer(t)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("open recovers sealed value", prop.ForAll(
		func(name string, size int64) bool {
			env, err := s.Seal(sealedDoc{Name: name, Size: size})
			if err != nil {
				return false
			}
			var got sealedDoc
			if err := s.Open(env, &got); err != nil {
				return false
			}
			return got.Name == name && got.Size == size
		},
		gen.AnyString(),
		gen.Int64(),
	))

	properties.Property("any flipped byte fails closed", prop.ForAll(
		func(name string, pos int) bool {
			env, err := s.Seal(sealedDoc{Name: name})
			if err != nil {
				return false
			}
			raw, err := base64.RawURLEncoding.DecodeString(env)
			if err != nil {
				return false
			}
			raw[pos%len(raw)] ^= 0x01
			var got sealedDoc
			return s.Open(base64.RawURLEncoding.EncodeToString(raw), &got) == ErrEnvelope
		},
		gen.AlphaString(),
		gen.IntRange(0, 4096),
	))

	properties.TestingRun(t)
}

func TestSealerUsesFreshNonce(t *testing.T) {
	s := newTestSealer(t)
	a, err := s.Seal(sealedDoc{Name: "x"})
	require.NoError(t, err)
	b, err := s.Seal(sealedDoc{Name: "x"})
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestSealerRejectsMalformed(t *testing.T) {
	s := newTestSealer(t)
	var got sealedDoc

	require.ErrorIs(t, s.Open("", &got), ErrEnvelope)
	require.ErrorIs(t, s.Open("not base64 !!", &got), ErrEnvelope)
	require.ErrorIs(t, s.Open(base64.RawURLEncoding.EncodeToString(make([]byte, 20)), &got), ErrEnvelope)
}

func TestSealerRejectsForeignKey(t *testing.T) {
	s := newTestSealer(t)
	other, err := NewSealer([]byte("another-secret-another-secret!!"))
	require.NoError(t, err)

	env, err := s.Seal(sealedDoc{Name: "clip.mp4"})
	require.NoError(t, err)

	var got sealedDoc
	require.ErrorIs(t, other.Open(env, &got), ErrEnvelope)
}
