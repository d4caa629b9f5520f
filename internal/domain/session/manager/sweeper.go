// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package manager

import (
	"context"
	"time"

	"github.com/ManuGH/clipgate/internal/domain/session/lifecycle"
	"github.com/ManuGH/clipgate/internal/domain/session/model"
	"github.com/ManuGH/clipgate/internal/log"
	"github.com/ManuGH/clipgate/internal/metrics"
)

// SweepStats summarizes one sweep pass.
type SweepStats struct {
	Expired   int
	Skipped   int
	Recovered int
	Orphans   int
}

// Sweeper reclaims expired sessions, sessions abandoned by a dead holder and
// session directories without a record.
//
// Cleanup races with delivery are settled by the delivery lease: an expired
// session that is being streamed is skipped, the stream finishes and its own
// cleanup removes the files. Whichever of the two takes the lease first wins.
type Sweeper struct {
	m        *Manager
	interval time.Duration
}

// NewSweeper creates a sweeper running every interval.
func NewSweeper(m *Manager, interval time.Duration) *Sweeper {
	return &Sweeper{m: m, interval: interval}
}

// Run sweeps once immediately, which doubles as startup recovery, then on
// every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	logger := log.WithComponent("sweeper")
	s.SweepOnce(ctx)
	if s.interval <= 0 {
		logger.Warn().Msg("sweep interval disabled, only the startup pass ran")
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	logger.Info().Dur("interval", s.interval).Msg("background sweeper started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce performs exactly one pass: recovery, expiry, orphan directories.
func (s *Sweeper) SweepOnce(ctx context.Context) SweepStats {
	var st SweepStats
	st.Recovered = s.m.recoverStale(ctx)
	st.Expired, st.Skipped = s.sweepExpired(ctx)
	st.Orphans = s.sweepOrphans(ctx)

	if st != (SweepStats{}) {
		logger := log.WithComponent("sweeper")
		logger.Info().
			Int("expired", st.Expired).
			Int("skipped", st.Skipped).
			Int("recovered", st.Recovered).
			Int("orphans", st.Orphans).
			Msg("sweep pass finished")
	}
	return st
}

func (s *Sweeper) sweepExpired(ctx context.Context) (removed, skipped int) {
	m := s.m
	now := m.now()
	var expired []string
	err := m.store.ScanSessions(ctx, func(r *model.Session) error {
		if r.IsExpired(now) {
			expired = append(expired, r.ID)
		}
		return nil
	})
	if err != nil {
		logger := log.WithComponent("sweeper")
		logger.Error().Err(err).Msg("sweep scan failed")
		return 0, 0
	}

	for _, id := range expired {
		if ctx.Err() != nil {
			break
		}
		// A local job reaches its own deadline; nudge it in case the
		// clock moved faster than its timer.
		if m.workers.Cancel(id, errExpired) {
			continue
		}
		switch m.expire(ctx, id, now) {
		case expireRemoved:
			removed++
		case expireBusy:
			skipped++
		}
	}
	return removed, skipped
}

type expireResult int

const (
	expireNoop expireResult = iota
	expireRemoved
	expireBusy
)

// expire removes one expired session unless someone holds its lease.
func (m *Manager) expire(ctx context.Context, id string, now time.Time) expireResult {
	logger := log.WithComponent("sweeper").With().Str(log.FieldSessionID, id).Logger()
	owner := m.newOwner()
	ok, err := m.claim(ctx, id, owner)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to claim expired session")
		return expireNoop
	}
	if !ok {
		metrics.SweeperSkippedTotal.Inc()
		logger.Debug().Msg("expired session busy, retrying next pass")
		return expireBusy
	}
	defer m.unclaim(ctx, id, owner)

	rec, err := m.store.GetSession(ctx, id)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to load expired session")
		return expireNoop
	}
	if rec == nil {
		m.removeArtifacts(id)
		return expireNoop
	}
	if !rec.IsExpired(now) {
		return expireNoop
	}
	if _, allowed := lifecycle.TransitionFor(rec.State, lifecycle.EvExpired); allowed {
		if _, err := m.transition(ctx, id, lifecycle.Event{Kind: lifecycle.EvExpired, Reason: model.RTTLElapsed}, nil); err != nil {
			logger.Warn().Err(err).Msg("failed to mark session expired")
		}
	}
	m.removeArtifacts(id)
	if err := m.store.DeleteSession(ctx, id); err != nil {
		logger.Warn().Err(err).Msg("failed to delete expired session")
		return expireNoop
	}
	metrics.SweeperRemovedTotal.WithLabelValues("expired").Inc()
	return expireRemoved
}

// needsHolder reports whether a record is only valid while someone holds its
// delivery lease: active sessions, and pending ones still being extracted.
func needsHolder(r *model.Session) bool {
	return r.State.IsActive() || (r.State == model.StatePending && !r.HasArtifact())
}

// recoverStale fails sessions whose holder is gone, e.g. after a crash. If
// the lease can be taken, nobody is working on the session any more.
func (m *Manager) recoverStale(ctx context.Context) int {
	logger := log.WithComponent("recovery")
	now := m.now()
	var candidates []string
	err := m.store.ScanSessions(ctx, func(r *model.Session) error {
		if needsHolder(r) && !r.IsExpired(now) && !m.workers.Running(r.ID) {
			candidates = append(candidates, r.ID)
		}
		return nil
	})
	if err != nil {
		logger.Error().Err(err).Msg("recovery scan failed")
		return 0
	}

	recovered := 0
	for _, id := range candidates {
		if ctx.Err() != nil {
			break
		}
		owner := m.newOwner()
		ok, err := m.claim(ctx, id, owner)
		if err != nil || !ok {
			continue
		}
		rec, err := m.store.GetSession(ctx, id)
		if err == nil && rec != nil && needsHolder(rec) && !m.workers.Running(id) {
			if _, err := m.transition(ctx, id, lifecycle.Event{Kind: lifecycle.EvFailed, Reason: model.RShutdown}, nil); err != nil {
				logger.Warn().Err(err).Str(log.FieldSessionID, id).Msg("failed to recover stale session")
			} else {
				m.removeArtifacts(id)
				recovered++
				logger.Info().
					Str(log.FieldSessionID, id).
					Str(log.FieldOldState, string(rec.State)).
					Msg("recovered session abandoned by its holder")
			}
		}
		m.unclaim(ctx, id, owner)
	}
	return recovered
}

// sweepOrphans removes session directories that have no record and are older
// than OrphanMaxAge.
func (s *Sweeper) sweepOrphans(ctx context.Context) int {
	m := s.m
	logger := log.WithComponent("sweeper")
	dirs, err := m.artifacts.ListSessionDirs()
	if err != nil {
		logger.Warn().Err(err).Msg("sweep files failed to read dir")
		return 0
	}
	cutoff := m.now().Add(-m.cfg.OrphanMaxAge)

	removed := 0
	for _, d := range dirs {
		if ctx.Err() != nil {
			break
		}
		if d.ModTime.After(cutoff) || m.workers.Running(d.ID) {
			continue
		}
		rec, err := m.store.GetSession(ctx, d.ID)
		if err != nil || rec != nil {
			continue
		}
		owner := m.newOwner()
		ok, err := m.claim(ctx, d.ID, owner)
		if err != nil || !ok {
			continue
		}
		m.removeArtifacts(d.ID)
		m.unclaim(ctx, d.ID, owner)
		removed++
		metrics.SweeperRemovedTotal.WithLabelValues("orphan").Inc()
		logger.Info().Str(log.FieldSessionID, d.ID).Str(log.FieldPath, d.Path).Msg("removed orphan session directory")
	}
	return removed
}
