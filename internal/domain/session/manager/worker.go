// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package manager

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ManuGH/clipgate/internal/domain/session/lifecycle"
	"github.com/ManuGH/clipgate/internal/domain/session/model"
	"github.com/ManuGH/clipgate/internal/log"
)

// runQueued extracts a queued session in the background. The delivery lease
// taken at admission is held until the job ends, so neither the sweeper nor
// recovery touch the session meanwhile.
func (m *Manager) runQueued(ctx context.Context, rec *model.Session, owner string) {
	logger := log.WithComponentFromContext(ctx, "worker")
	defer m.unclaim(ctx, rec.ID, owner)

	ctx, cancelDeadline := context.WithDeadlineCause(ctx, rec.ExpiresAt, errExpired)
	defer cancelDeadline()
	ctx, stop := m.keepClaim(ctx, rec.ID, owner)
	defer stop()
	// Bookkeeping must survive cancellation of the job itself.
	bg := context.WithoutCancel(ctx)

	permit, err := m.gate.Acquire(ctx)
	if err != nil {
		m.endJob(bg, ctx, rec.ID, gateError(err))
		return
	}
	defer permit.Release()
	logger.Debug().Dur("gate_wait", permit.Waited()).Msg("extraction admitted")

	if _, err := m.transition(bg, rec.ID, lifecycle.Event{Kind: lifecycle.EvAdmitted}, nil); err != nil {
		m.endJob(bg, ctx, rec.ID, err)
		return
	}
	if _, err := m.transition(bg, rec.ID, lifecycle.Event{Kind: lifecycle.EvStarted}, nil); err != nil {
		m.endJob(bg, ctx, rec.ID, err)
		return
	}

	reporter := m.newProgressReporter(bg, rec.ID)
	art, err := m.extract(ctx, rec, reporter.Report)
	permit.Release()
	if err != nil {
		m.endJob(bg, ctx, rec.ID, err)
		return
	}

	done, err := m.transition(bg, rec.ID, lifecycle.Event{Kind: lifecycle.EvCompleted}, func(r *model.Session) {
		applyArtifact(r, art)
		r.Progress.BytesTotal = art.Size
		r.Progress.BytesDone = art.Size
	})
	if err != nil {
		// The record vanished or was cancelled while the tool was finishing.
		logger.Warn().Err(err).Msg("could not record finished artifact")
		m.removeArtifacts(rec.ID)
		return
	}
	logger.Info().
		Str(log.FieldEvent, "session.completed").
		Int64(log.FieldBytes, done.SizeBytes).
		Msg("queued extraction completed")
}

// endJob records the terminal state of a job that did not produce an
// artifact. The cancellation cause of jobCtx decides the state.
func (m *Manager) endJob(ctx, jobCtx context.Context, id string, err error) {
	ev := lifecycle.Event{Kind: lifecycle.EvFailed, Reason: model.RUpstreamFailed}
	cause := context.Cause(jobCtx)
	switch {
	case errors.Is(cause, errCancelled):
		ev = lifecycle.Event{Kind: lifecycle.EvCancelled, Reason: model.RClientCancelled}
	case errors.Is(cause, errExpired):
		ev = lifecycle.Event{Kind: lifecycle.EvExpired, Reason: model.RTTLElapsed}
	case errors.Is(cause, errShutdown):
		ev.Reason = model.RShutdown
	case errors.Is(err, ErrBusy):
		ev.Reason = model.RServerBusy
	case errors.Is(err, errTooLarge):
		ev.Reason = model.RTooLarge
	}

	logger := log.WithComponentFromContext(ctx, "worker")
	logger.Warn().
		Err(err).
		AnErr("cause", cause).
		Str(log.FieldEvent, "session."+string(ev.Kind)).
		Msg("queued extraction ended without artifact")

	if _, terr := m.transition(ctx, id, ev, nil); terr != nil && !errors.Is(terr, lifecycle.ErrIllegalTransition) {
		logger.Warn().Err(terr).Msg("failed to record job outcome")
	}
	m.removeArtifacts(id)
	if ev.Kind == lifecycle.EvExpired {
		m.discard(ctx, id)
	}
}

// progressReporter folds raw progress into the session record, writing at
// most once per ProgressInterval.
type progressReporter struct {
	m   *Manager
	ctx context.Context
	id  string

	mu        sync.Mutex
	progress  model.Progress
	lastWrite time.Time
}

func (m *Manager) newProgressReporter(ctx context.Context, id string) *progressReporter {
	return &progressReporter{m: m, ctx: ctx, id: id}
}

var errNotRunning = errors.New("session not in progress")

// Report is safe for concurrent use.
func (r *progressReporter) Report(u model.ProgressUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = r.progress.Apply(u)
	now := time.Now()
	if now.Sub(r.lastWrite) < r.m.cfg.ProgressInterval {
		return
	}
	r.lastWrite = now
	r.write()
}

func (r *progressReporter) write() {
	p := r.progress
	rec, err := r.m.store.UpdateSession(r.ctx, r.id, func(s *model.Session) error {
		if s.State != model.StateInProgress {
			return errNotRunning
		}
		if p.Percent < s.Progress.Percent {
			p.Percent = s.Progress.Percent
		}
		s.Progress = p
		s.UpdatedAt = r.m.now()
		return nil
	})
	if err != nil {
		return
	}
	r.m.publish(r.ctx, rec)
}
