// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package manager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ManuGH/clipgate/internal/control/admission"
	"github.com/ManuGH/clipgate/internal/domain/session/lifecycle"
	"github.com/ManuGH/clipgate/internal/domain/session/model"
	"github.com/ManuGH/clipgate/internal/fsutil"
	"github.com/ManuGH/clipgate/internal/log"
	"github.com/ManuGH/clipgate/internal/metrics"
	"github.com/ManuGH/clipgate/internal/telemetry"
	"github.com/ManuGH/clipgate/internal/token"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const copyBufferSize = 64 << 10

// DeliveryInfo describes the artifact about to be streamed.
type DeliveryInfo struct {
	FileName string
	MimeType string
	Size     int64
	ModTime  time.Time
}

// Sink receives an artifact. Prepare is called once every check has passed,
// before the first byte; the returned writer receives the content.
type Sink interface {
	Prepare(info DeliveryInfo) (io.Writer, error)
}

// Delivery outcomes, used as metric labels.
const (
	outcomeCompleted = "completed"
	outcomeAborted   = "aborted"
	outcomeMissing   = "artifact_missing"
)

// ResolveAndStream redeems a download link and streams the artifact into
// sink. Every integrity failure is reported as ErrInvalidOrExpired.
func (m *Manager) ResolveAndStream(ctx context.Context, r token.Redemption, sink Sink) error {
	ctx, span := m.tracer.Start(ctx, "session.deliver")
	defer span.End()

	now := m.now()
	claims, err := m.issuer.Redeem(r, now)
	if err != nil {
		return m.reject(ctx, token.Reason(err))
	}
	id := claims.SessionID
	ctx = log.ContextWithSessionID(ctx, id)

	rec, err := m.store.GetSession(ctx, id)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if reason, err := redeemable(rec, claims, now); err != nil || reason != "" {
		if reason != "" {
			return m.reject(ctx, reason)
		}
		return err
	}

	owner := m.newOwner()
	ok, err := m.claim(ctx, id, owner)
	if err != nil {
		return fmt.Errorf("claim session: %w", err)
	}
	if !ok {
		return m.reject(ctx, "busy")
	}
	defer m.unclaim(ctx, id, owner)
	ctx, stop := m.keepClaim(ctx, id, owner)
	defer stop()

	// The record may have moved on between the first read and the claim.
	rec, err = m.store.GetSession(ctx, id)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if reason, err := redeemable(rec, claims, m.now()); err != nil || reason != "" {
		if reason != "" {
			return m.reject(ctx, reason)
		}
		return err
	}
	span.SetAttributes(telemetry.SessionAttributes(id, string(rec.Mode), rec.SourceHost)...)
	return m.deliver(ctx, rec, sink, span)
}

// redeemable checks a loaded record against redeemed claims. A non-empty
// reason means the link must be rejected.
func redeemable(rec *model.Session, c token.Claims, now time.Time) (string, error) {
	switch {
	case rec == nil:
		return "unknown_session", nil
	case rec.ExpiresAt.UnixMilli() != c.ExpiresAt.UnixMilli():
		return "expiry_mismatch", nil
	case rec.IsExpired(now):
		return "expired", nil
	}
	switch rec.Mode {
	case model.ModeFetch:
		if rec.State == model.StatePending && rec.HasArtifact() {
			return "", nil
		}
	case model.ModeQueued:
		if rec.State == model.StateCompleted && rec.HasArtifact() {
			return "", nil
		}
		if rec.State == model.StatePending || rec.State.IsActive() {
			return "", ErrNotReady
		}
	}
	return "state", nil
}

func (m *Manager) reject(ctx context.Context, reason string) error {
	if reason == "" {
		reason = "unknown"
	}
	metrics.TokenRejectTotal.WithLabelValues(reason).Inc()
	logger := log.WithComponentFromContext(ctx, "manager")
	logger.Info().
		Str(log.FieldEvent, "download.rejected").
		Str("reason", reason).
		Msg("download link rejected")
	return ErrInvalidOrExpired
}

func (m *Manager) deliver(ctx context.Context, rec *model.Session, sink Sink, span trace.Span) error {
	logger := log.WithComponentFromContext(ctx, "delivery")
	bg := context.WithoutCancel(ctx)
	start := time.Now()
	id := rec.ID

	// Fetch-mode delivery is the heavy operation of its session and takes a
	// gate slot; queued artifacts were gated during extraction.
	var permit *admission.Permit
	defer func() { permit.Release() }()
	if rec.Mode == model.ModeFetch {
		var err error
		permit, err = m.gate.Acquire(ctx)
		if err != nil {
			// The session stays pending so the link can be retried.
			return gateError(err)
		}

		if _, err := m.transition(bg, id, lifecycle.Event{Kind: lifecycle.EvAdmitted}, nil); err != nil {
			return fmt.Errorf("admit delivery: %w", err)
		}
		rec, err = m.transition(bg, id, lifecycle.Event{Kind: lifecycle.EvStarted}, func(r *model.Session) {
			r.Progress = model.Progress{BytesTotal: r.SizeBytes}
		})
		if err != nil {
			return fmt.Errorf("start delivery: %w", err)
		}
	}

	f, info, err := m.artifacts.OpenArtifact(id, rec.ArtifactPath)
	if err != nil {
		logger.Warn().Err(err).Msg("artifact unavailable")
		m.finishDelivery(bg, rec, outcomeMissing)
		metrics.StreamDurationSeconds.WithLabelValues(outcomeMissing).Observe(time.Since(start).Seconds())
		return m.reject(ctx, outcomeMissing)
	}
	defer f.Close()

	name := rec.ArtifactName
	if name == "" {
		name = fsutil.FallbackFilename
	}
	mime := rec.MimeType
	if mime == "" {
		mime = "application/octet-stream"
	}
	size := info.Size()

	var n int64
	w, err := sink.Prepare(DeliveryInfo{FileName: name, MimeType: mime, Size: size, ModTime: info.ModTime()})
	if err == nil {
		pw := &progressWriter{w: w, total: size, start: time.Now()}
		if rec.Mode == model.ModeFetch {
			pw.reporter = m.newProgressReporter(bg, id)
		}
		buf := make([]byte, copyBufferSize)
		n, err = io.CopyBuffer(pw, ctxReader{ctx: ctx, r: f}, buf)
		if err == nil && n != size {
			err = io.ErrUnexpectedEOF
		}
	}
	permit.Release()
	metrics.BytesStreamedTotal.Add(float64(n))

	outcome := outcomeCompleted
	if err != nil {
		outcome = outcomeAborted
	}
	m.finishDelivery(bg, rec, outcome)
	elapsed := time.Since(start)
	metrics.StreamDurationSeconds.WithLabelValues(outcome).Observe(elapsed.Seconds())
	var waited time.Duration
	if permit != nil {
		waited = permit.Waited()
	}
	span.SetAttributes(telemetry.DeliveryAttributes(n, outcome, waited.Milliseconds())...)

	if err != nil {
		span.SetStatus(codes.Error, outcome)
		logger.Info().
			Err(err).
			Str(log.FieldEvent, "download.aborted").
			Int64(log.FieldBytes, n).
			Int64(log.FieldDuration, elapsed.Milliseconds()).
			Msg("artifact delivery aborted")
		return fmt.Errorf("delivery aborted: %w", err)
	}
	logger.Info().
		Str(log.FieldEvent, "download.completed").
		Int64(log.FieldBytes, n).
		Int64(log.FieldDuration, elapsed.Milliseconds()).
		Msg("artifact delivered")
	return nil
}

// finishDelivery applies the cleanup policy for a delivery outcome. The
// caller holds the delivery lease.
//
//	fetch, completed:   completed, artifact and record removed
//	fetch, aborted:     cancelled, artifact removed, record kept until its TTL
//	fetch, missing:     failed, record kept until its TTL
//	queued, completed:  artifact and record removed
//	queued, aborted:    untouched, the link stays valid until its TTL
//	queued, missing:    artifact and record removed
func (m *Manager) finishDelivery(ctx context.Context, rec *model.Session, outcome string) {
	id := rec.ID
	if rec.Mode == model.ModeQueued {
		switch outcome {
		case outcomeCompleted:
			m.discard(ctx, id)
		case outcomeMissing:
			m.discard(ctx, id)
			m.publishGone(ctx, id)
		}
		return
	}

	var ev lifecycle.Event
	switch outcome {
	case outcomeCompleted:
		ev = lifecycle.Event{Kind: lifecycle.EvCompleted}
	case outcomeAborted:
		ev = lifecycle.Event{Kind: lifecycle.EvCancelled, Reason: model.RStreamAborted}
	default:
		ev = lifecycle.Event{Kind: lifecycle.EvFailed, Reason: model.RArtifactMissing}
	}
	if _, err := m.transition(ctx, id, ev, nil); err != nil && !errors.Is(err, lifecycle.ErrIllegalTransition) {
		log.L().Warn().Err(err).Str(log.FieldSessionID, id).Msg("failed to record delivery outcome")
	}
	if outcome == outcomeCompleted {
		m.discard(ctx, id)
		return
	}
	m.removeArtifacts(id)
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// progressWriter counts delivered bytes and reports them to the registry.
type progressWriter struct {
	w        io.Writer
	reporter *progressReporter
	total    int64
	written  int64
	start    time.Time
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.written += int64(n)
	if p.reporter != nil && n > 0 {
		u := model.ProgressUpdate{BytesDone: p.written, BytesTotal: p.total}
		if secs := time.Since(p.start).Seconds(); secs > 0 {
			rate := float64(p.written) / secs
			u.Speed = rate
			if rate > 0 {
				u.ETA = float64(p.total-p.written) / rate
			}
		}
		p.reporter.Report(u)
	}
	return n, err
}
