// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package extractor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ManuGH/clipgate/internal/domain/session/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingExtractor struct {
	calls atomic.Int32
	err   error
}

func (c *countingExtractor) FetchMetadata(context.Context, string) (ports.Metadata, error) {
	c.calls.Add(1)
	return ports.Metadata{Title: "t"}, c.err
}

func (c *countingExtractor) FetchArtifact(context.Context, ports.FetchRequest, ports.ProgressFunc) (ports.Artifact, error) {
	c.calls.Add(1)
	return ports.Artifact{Path: "/x"}, c.err
}

func TestThrottledWrapsErrors(t *testing.T) {
	inner := &countingExtractor{err: errors.New("exit status 1")}
	th := NewThrottled(inner, 0, 0)

	_, err := th.FetchMetadata(context.Background(), "u")
	require.ErrorIs(t, err, ports.ErrExtractor)

	_, err = th.FetchArtifact(context.Background(), ports.FetchRequest{}, nil)
	require.ErrorIs(t, err, ports.ErrExtractor)
	assert.EqualValues(t, 2, inner.calls.Load())
}

func TestThrottledPassesResults(t *testing.T) {
	th := NewThrottled(&countingExtractor{}, 0, 0)
	md, err := th.FetchMetadata(context.Background(), "u")
	require.NoError(t, err)
	assert.Equal(t, "t", md.Title)
}

func TestThrottledLimitsRate(t *testing.T) {
	inner := &countingExtractor{}
	th := NewThrottled(inner, 1, 1)

	_, err := th.FetchMetadata(context.Background(), "u")
	require.NoError(t, err)

	// The bucket is empty; a short deadline cannot be met.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = th.FetchMetadata(ctx, "u")
	require.ErrorIs(t, err, ports.ErrExtractor)
	assert.EqualValues(t, 1, inner.calls.Load(), "throttled call never reaches upstream")
}
