// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package extractor wraps Extractor implementations with upstream rate
// limiting and call accounting.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/clipgate/internal/domain/session/ports"
	"github.com/ManuGH/clipgate/internal/metrics"
	"golang.org/x/time/rate"
)

// Throttled bounds the rate at which calls reach the upstream extractor.
type Throttled struct {
	inner   ports.Extractor
	limiter *rate.Limiter
}

var _ ports.Extractor = (*Throttled)(nil)

// NewThrottled wraps inner. A non-positive rps disables limiting.
func NewThrottled(inner ports.Extractor, rps float64, burst int) *Throttled {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if burst < 1 {
		burst = 1
	}
	return &Throttled{inner: inner, limiter: rate.NewLimiter(limit, burst)}
}

func (t *Throttled) wait(ctx context.Context) error {
	start := time.Now()
	err := t.limiter.Wait(ctx)
	metrics.ExtractorThrottleWaitSeconds.Observe(time.Since(start).Seconds())
	return err
}

func (t *Throttled) FetchMetadata(ctx context.Context, url string) (ports.Metadata, error) {
	if err := t.wait(ctx); err != nil {
		metrics.ExtractorCallsTotal.WithLabelValues("metadata", "throttled").Inc()
		return ports.Metadata{}, fmt.Errorf("%w: throttle: %w", ports.ErrExtractor, err)
	}
	md, err := t.inner.FetchMetadata(ctx, url)
	metrics.ExtractorCallsTotal.WithLabelValues("metadata", result(ctx, err)).Inc()
	return md, wrap(err)
}

func (t *Throttled) FetchArtifact(ctx context.Context, req ports.FetchRequest, onProgress ports.ProgressFunc) (ports.Artifact, error) {
	if err := t.wait(ctx); err != nil {
		metrics.ExtractorCallsTotal.WithLabelValues("artifact", "throttled").Inc()
		return ports.Artifact{}, fmt.Errorf("%w: throttle: %w", ports.ErrExtractor, err)
	}
	art, err := t.inner.FetchArtifact(ctx, req, onProgress)
	metrics.ExtractorCallsTotal.WithLabelValues("artifact", result(ctx, err)).Inc()
	return art, wrap(err)
}

func result(ctx context.Context, err error) string {
	switch {
	case err == nil:
		return "ok"
	case ctx.Err() != nil:
		return "cancelled"
	default:
		return "error"
	}
}

func wrap(err error) error {
	if err == nil || errors.Is(err, ports.ErrExtractor) {
		return err
	}
	return fmt.Errorf("%w: %w", ports.ErrExtractor, err)
}
