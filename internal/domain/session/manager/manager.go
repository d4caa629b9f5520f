// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package manager coordinates download sessions: request validation,
// extraction, token issuance, gated artifact delivery and cleanup.
package manager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/ManuGH/clipgate/internal/control/admission"
	"github.com/ManuGH/clipgate/internal/domain/session/lifecycle"
	"github.com/ManuGH/clipgate/internal/domain/session/model"
	"github.com/ManuGH/clipgate/internal/domain/session/ports"
	"github.com/ManuGH/clipgate/internal/domain/session/store"
	"github.com/ManuGH/clipgate/internal/fsutil"
	"github.com/ManuGH/clipgate/internal/infrastructure/platform"
	"github.com/ManuGH/clipgate/internal/log"
	"github.com/ManuGH/clipgate/internal/metrics"
	platformnet "github.com/ManuGH/clipgate/internal/platform/net"
	"github.com/ManuGH/clipgate/internal/telemetry"
	"github.com/ManuGH/clipgate/internal/token"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

const tracerName = "github.com/ManuGH/clipgate/internal/domain/session/manager"

// Config holds the session policies.
type Config struct {
	// TTL bounds the life of a session and its download link.
	TTL         time.Duration
	DefaultMode model.Mode
	// MaxArtifactBytes rejects larger artifacts. 0 disables the limit.
	MaxArtifactBytes int64
	MetadataTTL      time.Duration
	// LeaseTTL is the lifetime of a delivery lease between renewals.
	LeaseTTL time.Duration
	// OrphanMaxAge is how old a session directory without a record must be
	// before the sweeper removes it. Defaults to TTL.
	OrphanMaxAge time.Duration
	// ProgressInterval throttles progress writes to the registry.
	ProgressInterval time.Duration
}

// DefaultConfig returns the built-in policies.
func DefaultConfig() Config {
	return Config{
		TTL:              10 * time.Minute,
		DefaultMode:      model.ModeFetch,
		MetadataTTL:      5 * time.Minute,
		LeaseTTL:         30 * time.Second,
		ProgressInterval: 250 * time.Millisecond,
	}
}

// Deps are the collaborators of a Manager. Bus and Cache are optional.
type Deps struct {
	Store     store.StateStore
	Gate      *admission.Gate
	Issuer    token.Issuer
	Extractor ports.Extractor
	Hosts     *platformnet.HostAllowlist
	Artifacts *fsutil.ArtifactRoot
	Bus       ports.Bus
	Cache     ports.MetadataCache
	Platform  ports.Platform
	Now       func() time.Time
}

// Manager owns the download session lifecycle.
type Manager struct {
	cfg       Config
	store     store.StateStore
	gate      *admission.Gate
	issuer    token.Issuer
	extractor ports.Extractor
	hosts     *platformnet.HostAllowlist
	artifacts *fsutil.ArtifactRoot
	bus       ports.Bus
	cache     ports.MetadataCache
	platform  ports.Platform
	now       func() time.Time

	identity string
	inflight singleflight.Group
	workers  *workerRegistry
	tracer   trace.Tracer
}

// New validates deps and builds a Manager.
func New(cfg Config, deps Deps) (*Manager, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("manager: store is required")
	case deps.Gate == nil:
		return nil, errors.New("manager: admission gate is required")
	case deps.Issuer == nil:
		return nil, errors.New("manager: token issuer is required")
	case deps.Extractor == nil:
		return nil, errors.New("manager: extractor is required")
	case deps.Hosts == nil:
		return nil, errors.New("manager: host allow-list is required")
	case deps.Artifacts == nil:
		return nil, errors.New("manager: artifact root is required")
	}
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("manager: ttl must be positive, got %s", cfg.TTL)
	}
	if cfg.DefaultMode == "" {
		cfg.DefaultMode = model.ModeFetch
	}
	if !cfg.DefaultMode.Valid() {
		return nil, fmt.Errorf("manager: unknown default mode %q", cfg.DefaultMode)
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 30 * time.Second
	}
	if cfg.OrphanMaxAge <= 0 {
		cfg.OrphanMaxAge = cfg.TTL
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = 250 * time.Millisecond
	}
	if deps.Platform == nil {
		deps.Platform = platform.NewOSPlatform()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	identity, err := deps.Platform.Identity()
	if err != nil {
		return nil, fmt.Errorf("manager: identity: %w", err)
	}

	return &Manager{
		cfg:       cfg,
		store:     deps.Store,
		gate:      deps.Gate,
		issuer:    deps.Issuer,
		extractor: deps.Extractor,
		hosts:     deps.Hosts,
		artifacts: deps.Artifacts,
		bus:       deps.Bus,
		cache:     deps.Cache,
		platform:  deps.Platform,
		now:       deps.Now,
		identity:  identity,
		workers:   newWorkerRegistry(),
		tracer:    telemetry.Tracer(tracerName),
	}, nil
}

// Request asks for a new download session.
type Request struct {
	URL    string
	Format string
	Mode   model.Mode
}

// Ticket is returned for an accepted request.
type Ticket struct {
	ID        string
	Mode      model.Mode
	State     model.State
	Grant     token.Grant
	ExpiresAt time.Time
	Metadata  ports.Metadata
}

// Format selectors are passed as a single argument to the extractor; keep
// them to the characters its selector grammar uses.
var formatRe = regexp.MustCompile(`^[A-Za-z0-9_.,:+*/\[\]<>=!?-]{1,128}$`)

func validateFormat(f string) (string, error) {
	f = strings.TrimSpace(f)
	if f == "" {
		return "", nil
	}
	if strings.HasPrefix(f, "-") || !formatRe.MatchString(f) {
		return "", invalid("format is not a valid format selector")
	}
	return f, nil
}

// validateSource checks the link and the allow-list before any upstream call.
func (m *Manager) validateSource(raw string) (string, string, error) {
	u, err := platformnet.ParseSourceURL(raw)
	if err != nil {
		return "", "", &ValidationError{Msg: err.Error()}
	}
	host, err := m.hosts.Match(u.Hostname())
	if err != nil {
		return "", "", invalid("links from %s are not supported", strings.ToLower(u.Hostname()))
	}
	return u.String(), host, nil
}

func (m *Manager) resolveMode(mode model.Mode) (model.Mode, error) {
	if mode == "" {
		return m.cfg.DefaultMode, nil
	}
	if !mode.Valid() {
		return "", invalid("mode must be %q or %q", model.ModeFetch, model.ModeQueued)
	}
	return mode, nil
}

// Inspect validates a link and returns its metadata without creating a session.
func (m *Manager) Inspect(ctx context.Context, rawURL string) (ports.Metadata, error) {
	ctx, span := m.tracer.Start(ctx, "session.inspect")
	defer span.End()

	src, host, err := m.validateSource(rawURL)
	if err != nil {
		return ports.Metadata{}, err
	}
	span.SetAttributes(telemetry.SessionAttributes("", "", host)...)
	md, err := m.metadata(ctx, src)
	if err != nil {
		span.SetAttributes(telemetry.ErrorAttributes(errorType(err))...)
		span.SetStatus(codes.Error, "upstream")
	}
	return md, err
}

// metadata serves from the cache and collapses concurrent lookups of the
// same link into one extractor call.
func (m *Manager) metadata(ctx context.Context, src string) (ports.Metadata, error) {
	if m.cache != nil {
		if md, ok := m.cache.Get(ctx, src); ok {
			return md, nil
		}
	}

	ch := m.inflight.DoChan(src, func() (any, error) {
		// Shared by every waiter, so it must outlive any single caller.
		md, err := m.extractor.FetchMetadata(context.WithoutCancel(ctx), src)
		if err != nil {
			return ports.Metadata{}, err
		}
		if m.cache != nil && m.cfg.MetadataTTL > 0 {
			m.cache.Set(context.WithoutCancel(ctx), src, md, m.cfg.MetadataTTL)
		}
		return md, nil
	})

	select {
	case <-ctx.Done():
		return ports.Metadata{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			log.FromContext(ctx).Warn().
				Err(res.Err).
				Str("url", platformnet.SanitizeURL(src)).
				Msg("metadata lookup failed")
			return ports.Metadata{}, ErrUpstream
		}
		return res.Val.(ports.Metadata), nil
	}
}

// RequestDownload validates req and creates a session. In fetch mode the
// artifact is extracted before returning; in queued mode extraction runs in
// the background and the returned link becomes redeemable once it completes.
func (m *Manager) RequestDownload(ctx context.Context, req Request) (Ticket, error) {
	ctx, span := m.tracer.Start(ctx, "session.request")
	defer span.End()

	if m.workers.Closing() {
		return Ticket{}, ErrShuttingDown
	}
	src, host, err := m.validateSource(req.URL)
	if err != nil {
		return Ticket{}, err
	}
	mode, err := m.resolveMode(req.Mode)
	if err != nil {
		return Ticket{}, err
	}
	format, err := validateFormat(req.Format)
	if err != nil {
		return Ticket{}, err
	}

	id, err := model.NewSessionID()
	if err != nil {
		return Ticket{}, err
	}
	// Millisecond precision matches the expiry carried by the token.
	now := m.now().Truncate(time.Millisecond)
	rec := lifecycle.NewSession(id, src, host, format, mode, now, m.cfg.TTL)
	span.SetAttributes(telemetry.SessionAttributes(id, string(mode), host)...)

	var t Ticket
	if mode == model.ModeFetch {
		t, err = m.requestFetch(ctx, rec)
	} else {
		t, err = m.requestQueued(ctx, rec)
	}
	if err != nil {
		span.SetAttributes(telemetry.ErrorAttributes(errorType(err))...)
		span.SetStatus(codes.Error, "request failed")
	}
	return t, err
}

func (m *Manager) requestFetch(ctx context.Context, rec *model.Session) (Ticket, error) {
	logger := log.WithComponentFromContext(log.ContextWithSessionID(ctx, rec.ID), "manager")
	owner := m.newOwner()
	if err := m.admit(ctx, rec, owner); err != nil {
		return Ticket{}, err
	}
	defer m.unclaim(ctx, rec.ID, owner)

	jobCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	jobCtx, cancelDeadline := context.WithDeadlineCause(jobCtx, rec.ExpiresAt, errExpired)
	defer cancelDeadline()
	done, ok := m.workers.Track(rec.ID, cancel)
	if !ok {
		m.discard(ctx, rec.ID)
		return Ticket{}, ErrShuttingDown
	}
	defer done()
	jobCtx, stop := m.keepClaim(jobCtx, rec.ID, owner)
	defer stop()

	permit, err := m.gate.Acquire(jobCtx)
	if err != nil {
		m.discard(ctx, rec.ID)
		return Ticket{}, fetchFailure(ctx, jobCtx, gateError(err))
	}
	art, err := m.extract(jobCtx, rec, nil)
	permit.Release()
	if err != nil {
		m.discard(ctx, rec.ID)
		err = fetchFailure(ctx, jobCtx, err)
		if errors.Is(err, ErrUpstream) {
			logger.Warn().Err(context.Cause(jobCtx)).Str(log.FieldSourceHost, rec.SourceHost).Msg("extraction failed")
		}
		return Ticket{}, err
	}

	updated, err := m.store.UpdateSession(ctx, rec.ID, func(r *model.Session) error {
		applyArtifact(r, art)
		r.UpdatedAt = m.now()
		return nil
	})
	if err != nil {
		m.discard(ctx, rec.ID)
		return Ticket{}, fmt.Errorf("record artifact: %w", err)
	}

	grant, err := m.issue(updated)
	if err != nil {
		m.discard(ctx, rec.ID)
		return Ticket{}, err
	}
	m.publish(ctx, updated)
	logger.Info().
		Str(log.FieldEvent, "session.ready").
		Str(log.FieldMode, string(updated.Mode)).
		Int64(log.FieldBytes, updated.SizeBytes).
		Msg("artifact ready for pickup")

	return Ticket{
		ID:        updated.ID,
		Mode:      updated.Mode,
		State:     updated.State,
		Grant:     grant,
		ExpiresAt: grant.ExpiresAt,
		Metadata:  art.Metadata,
	}, nil
}

func (m *Manager) requestQueued(ctx context.Context, rec *model.Session) (Ticket, error) {
	md, err := m.metadata(ctx, rec.SourceURL)
	if err != nil {
		return Ticket{}, err
	}
	rec.Title = titleOf(md)
	rec.ArtifactName = fsutil.WithExtension(rec.Title, md.Extension)

	owner := m.newOwner()
	if err := m.admit(ctx, rec, owner); err != nil {
		return Ticket{}, err
	}
	grant, err := m.issue(rec)
	if err != nil {
		m.discard(ctx, rec.ID)
		m.unclaim(ctx, rec.ID, owner)
		return Ticket{}, err
	}

	jobCtx, cancel := context.WithCancelCause(context.Background())
	jobCtx = log.ContextWithSessionID(jobCtx, rec.ID)
	if rid := log.RequestIDFromContext(ctx); rid != "" {
		jobCtx = log.ContextWithRequestID(jobCtx, rid)
	}
	started := m.workers.Go(rec.ID, cancel, func() {
		defer cancel(nil)
		m.runQueued(jobCtx, rec.Clone(), owner)
	})
	if !started {
		cancel(nil)
		m.discard(ctx, rec.ID)
		m.unclaim(ctx, rec.ID, owner)
		return Ticket{}, ErrShuttingDown
	}

	return Ticket{
		ID:        rec.ID,
		Mode:      rec.Mode,
		State:     rec.State,
		Grant:     grant,
		ExpiresAt: grant.ExpiresAt,
		Metadata:  md,
	}, nil
}

// admit claims the delivery lease of a fresh session, creates its directory
// and stores the pending record. The lease is held on success.
func (m *Manager) admit(ctx context.Context, rec *model.Session, owner string) error {
	ok, err := m.claim(ctx, rec.ID, owner)
	if err != nil {
		return fmt.Errorf("claim session: %w", err)
	}
	if !ok {
		return fmt.Errorf("claim session %s: lease already held", rec.ID)
	}
	if _, err := m.artifacts.CreateSessionDir(rec.ID); err != nil {
		m.unclaim(ctx, rec.ID, owner)
		return err
	}
	if err := m.store.PutSession(ctx, rec); err != nil {
		m.removeArtifacts(rec.ID)
		m.unclaim(ctx, rec.ID, owner)
		return fmt.Errorf("store session: %w", err)
	}
	metrics.SessionsCreatedTotal.WithLabelValues(string(rec.Mode)).Inc()
	logger := log.WithComponentFromContext(ctx, "manager")
	logger.Info().
		Str(log.FieldSessionID, rec.ID).
		Str(log.FieldEvent, "session.created").
		Str(log.FieldMode, string(rec.Mode)).
		Str(log.FieldSourceHost, rec.SourceHost).
		Msg("download session created")
	return nil
}

// extract runs the extractor into the session directory and checks the result.
func (m *Manager) extract(ctx context.Context, rec *model.Session, onProgress ports.ProgressFunc) (ports.Artifact, error) {
	dir, err := m.artifacts.SessionDir(rec.ID)
	if err != nil {
		return ports.Artifact{}, err
	}
	art, err := m.extractor.FetchArtifact(ctx, ports.FetchRequest{
		URL:       rec.SourceURL,
		Format:    rec.Format,
		OutputDir: dir,
		MaxBytes:  m.cfg.MaxArtifactBytes,
	}, onProgress)
	if err != nil {
		return ports.Artifact{}, err
	}
	if _, err := fsutil.ConfineAbsPath(dir, art.Path); err != nil {
		return ports.Artifact{}, fmt.Errorf("%w: artifact outside session dir: %w", ports.ErrExtractor, err)
	}
	if m.cfg.MaxArtifactBytes > 0 && art.Size > m.cfg.MaxArtifactBytes {
		return ports.Artifact{}, errTooLarge
	}
	return art, nil
}

var errTooLarge = fmt.Errorf("%w: artifact exceeds size limit", ports.ErrExtractor)

func applyArtifact(r *model.Session, art ports.Artifact) {
	r.Title = titleOf(art.Metadata)
	ext := strings.TrimPrefix(filepath.Ext(art.Path), ".")
	r.ArtifactPath = art.Path
	r.ArtifactName = fsutil.WithExtension(r.Title, ext)
	r.MimeType = art.MimeType
	r.SizeBytes = art.Size
}

func titleOf(md ports.Metadata) string {
	if t := strings.TrimSpace(md.Title); t != "" {
		return t
	}
	return fsutil.FallbackFilename
}

func (m *Manager) issue(rec *model.Session) (token.Grant, error) {
	grant, err := m.issuer.Issue(token.Claims{
		SessionID: rec.ID,
		FileName:  rec.ArtifactName,
		Size:      rec.SizeBytes,
		MimeType:  rec.MimeType,
		ExpiresAt: rec.ExpiresAt,
	})
	if err != nil {
		return token.Grant{}, fmt.Errorf("issue download link: %w", err)
	}
	return grant, nil
}

// fetchFailure classifies a failed in-request extraction. Upstream details
// never reach the client.
func fetchFailure(reqCtx, jobCtx context.Context, err error) error {
	switch {
	case errors.Is(err, ErrBusy):
		return ErrBusy
	case reqCtx.Err() != nil:
		return reqCtx.Err()
	case errors.Is(context.Cause(jobCtx), errShutdown):
		return ErrShuttingDown
	default:
		return ErrUpstream
	}
}

// transition applies ev to the stored record and publishes the change.
func (m *Manager) transition(ctx context.Context, id string, ev lifecycle.Event, mutate func(*model.Session)) (*model.Session, error) {
	var from model.State
	rec, err := m.store.UpdateSession(ctx, id, func(r *model.Session) error {
		from = r.State
		if err := lifecycle.Apply(r, ev, m.now()); err != nil {
			return err
		}
		if mutate != nil {
			mutate(r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if rec.State.IsTerminal() {
		metrics.SessionTerminalTotal.WithLabelValues(string(rec.State)).Inc()
	}
	logger := log.WithComponentFromContext(ctx, "manager")
	logger.Debug().
		Str(log.FieldSessionID, id).
		Str(log.FieldOldState, string(from)).
		Str(log.FieldNewState, string(rec.State)).
		Msg("session transition")
	m.publish(ctx, rec)
	return rec, nil
}

// publish signals observers with the current view. Delivery is best effort.
func (m *Manager) publish(ctx context.Context, rec *model.Session) {
	if m.bus == nil || rec == nil {
		return
	}
	payload, err := json.Marshal(ViewOf(rec, m.now()))
	if err != nil {
		return
	}
	if err := m.bus.Publish(context.WithoutCancel(ctx), ports.SessionTopic(rec.ID), payload); err != nil {
		log.L().Debug().Err(err).Str(log.FieldSessionID, rec.ID).Msg("publish session signal failed")
	}
}

func (m *Manager) publishGone(ctx context.Context, id string) {
	if m.bus == nil {
		return
	}
	payload, err := json.Marshal(NotFoundView(id))
	if err != nil {
		return
	}
	_ = m.bus.Publish(context.WithoutCancel(ctx), ports.SessionTopic(id), payload)
}

// removeArtifacts deletes the session directory. A missing directory is fine.
func (m *Manager) removeArtifacts(id string) {
	dir, err := m.artifacts.SessionDir(id)
	if err != nil {
		return
	}
	if err := m.platform.RemoveAll(dir); err != nil {
		log.L().Warn().Err(err).Str(log.FieldSessionID, id).Msg("failed to remove session directory")
	}
}

// discard removes both the artifacts and the record of a session.
func (m *Manager) discard(ctx context.Context, id string) {
	m.removeArtifacts(id)
	if err := m.store.DeleteSession(context.WithoutCancel(ctx), id); err != nil {
		log.L().Warn().Err(err).Str(log.FieldSessionID, id).Msg("failed to delete session record")
	}
}

// Snapshot returns the current view of a session.
func (m *Manager) Snapshot(ctx context.Context, id string) (View, error) {
	if !model.IsSafeSessionID(id) {
		return View{}, ErrNotFound
	}
	rec, err := m.store.GetSession(ctx, id)
	if err != nil {
		return View{}, fmt.Errorf("load session: %w", err)
	}
	if rec == nil {
		return View{}, ErrNotFound
	}
	return ViewOf(rec, m.now()), nil
}

// Cancel stops a session. Running jobs are cancelled and clean up after
// themselves; a ready artifact is discarded. Sessions being delivered cannot
// be cancelled.
func (m *Manager) Cancel(ctx context.Context, id string) error {
	if !model.IsSafeSessionID(id) {
		return ErrNotFound
	}
	if m.workers.Cancel(id, errCancelled) {
		return nil
	}
	rec, err := m.store.GetSession(ctx, id)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if rec == nil {
		return ErrNotFound
	}

	owner := m.newOwner()
	ok, err := m.claim(ctx, id, owner)
	if err != nil {
		return fmt.Errorf("claim session: %w", err)
	}
	if !ok {
		return ErrDelivering
	}
	defer m.unclaim(ctx, id, owner)

	if !rec.State.IsTerminal() {
		if _, err := m.transition(ctx, id, lifecycle.Event{Kind: lifecycle.EvCancelled, Reason: model.RClientCancelled}, nil); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		m.removeArtifacts(id)
		return nil
	}
	m.discard(ctx, id)
	m.publishGone(ctx, id)
	return nil
}

// Shutdown stops accepting work, cancels running jobs and waits for
// background workers until ctx is done.
func (m *Manager) Shutdown(ctx context.Context) error {
	return m.workers.CloseAndWait(ctx, errShutdown)
}
