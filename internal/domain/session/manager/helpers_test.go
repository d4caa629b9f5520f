// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package manager

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ManuGH/clipgate/internal/control/admission"
	"github.com/ManuGH/clipgate/internal/domain/session/model"
	"github.com/ManuGH/clipgate/internal/domain/session/ports"
	"github.com/ManuGH/clipgate/internal/domain/session/store"
	"github.com/ManuGH/clipgate/internal/fsutil"
	"github.com/ManuGH/clipgate/internal/infra/bus"
	platformnet "github.com/ManuGH/clipgate/internal/platform/net"
	"github.com/ManuGH/clipgate/internal/token"
	"github.com/stretchr/testify/require"
)

const testURL = "https://tiktok.com/@a/video/1"

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Now().Truncate(time.Millisecond)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// fakeExtractor writes content as the artifact. With hold set, FetchArtifact
// waits for release (or ctx) before producing anything.
type fakeExtractor struct {
	content []byte
	title   string
	fail    error
	hold    chan struct{}
	started chan string

	metaCalls     atomic.Int32
	artifactCalls atomic.Int32

	mu      sync.Mutex
	lastURL string
	ctxErr  error
}

func newFakeExtractor() *fakeExtractor {
	return &fakeExtractor{
		content: bytes.Repeat([]byte("clipgate"), 32<<10), // 256 KiB
		title:   "My Clip",
		started: make(chan string, 16),
	}
}

func (f *fakeExtractor) FetchMetadata(_ context.Context, url string) (ports.Metadata, error) {
	f.metaCalls.Add(1)
	f.mu.Lock()
	f.lastURL = url
	f.mu.Unlock()
	if f.fail != nil {
		return ports.Metadata{}, f.fail
	}
	return ports.Metadata{Title: f.title, Extension: "mp4"}, nil
}

func (f *fakeExtractor) FetchArtifact(ctx context.Context, req ports.FetchRequest, onProgress ports.ProgressFunc) (ports.Artifact, error) {
	f.artifactCalls.Add(1)
	f.mu.Lock()
	f.lastURL = req.URL
	f.mu.Unlock()
	f.started <- req.URL

	if f.hold != nil {
		select {
		case <-f.hold:
		case <-ctx.Done():
			f.mu.Lock()
			f.ctxErr = ctx.Err()
			f.mu.Unlock()
			return ports.Artifact{}, ctx.Err()
		}
	}
	if f.fail != nil {
		return ports.Artifact{}, f.fail
	}
	if onProgress != nil {
		onProgress(model.ProgressUpdate{Percent: "42.5%", Speed: "1.5MiB/s", ETA: "00:13"})
	}
	path := filepath.Join(req.OutputDir, "artifact.mp4")
	if err := os.WriteFile(path, f.content, 0o600); err != nil {
		return ports.Artifact{}, err
	}
	return ports.Artifact{
		Path:     path,
		Size:     int64(len(f.content)),
		MimeType: "video/mp4",
		Metadata: ports.Metadata{Title: f.title, Extension: "mp4"},
	}, nil
}

func (f *fakeExtractor) LastURL() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastURL
}

func (f *fakeExtractor) CtxErr() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ctxErr
}

type harness struct {
	m      *Manager
	store  *store.MemoryStore
	gate   *admission.Gate
	ext    *fakeExtractor
	clock  *testClock
	root   *fsutil.ArtifactRoot
	bus    *bus.MemoryBus
	issuer token.Issuer
}

type harnessOption func(*Config, *admission.Config, *Deps)

func withGateCapacity(n int) harnessOption {
	return func(_ *Config, g *admission.Config, _ *Deps) { g.Capacity = n }
}

func withDefaultMode(mode model.Mode) harnessOption {
	return func(c *Config, _ *admission.Config, _ *Deps) { c.DefaultMode = mode }
}

func withCache(c ports.MetadataCache) harnessOption {
	return func(_ *Config, _ *admission.Config, d *Deps) { d.Cache = c }
}

func withIssuerMode(mode string) harnessOption {
	return func(_ *Config, _ *admission.Config, d *Deps) {
		iss, err := token.NewIssuer(mode, []byte("test-secret-with-enough-entropy"))
		if err != nil {
			panic(err)
		}
		d.Issuer = iss
	}
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	cfg := DefaultConfig()
	cfg.ProgressInterval = time.Millisecond
	gateCfg := admission.Config{Capacity: 2}

	root, err := fsutil.NewArtifactRoot(t.TempDir())
	require.NoError(t, err)
	hosts, err := platformnet.NewHostAllowlist([]string{"tiktok.com", "instagram.com", "facebook.com", "fb.watch"})
	require.NoError(t, err)
	issuer, err := token.NewIssuer(token.ModeSigned, []byte("test-secret-with-enough-entropy"))
	require.NoError(t, err)

	clock := newTestClock()
	st := store.NewMemoryStore()
	ext := newFakeExtractor()
	b := bus.NewMemoryBus()
	deps := Deps{
		Store:     st,
		Issuer:    issuer,
		Extractor: ext,
		Hosts:     hosts,
		Artifacts: root,
		Bus:       b,
		Now:       clock.Now,
	}
	for _, o := range opts {
		o(&cfg, &gateCfg, &deps)
	}
	gate := admission.NewGate(gateCfg)
	deps.Gate = gate

	m, err := New(cfg, deps)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})

	return &harness{m: m, store: st, gate: gate, ext: ext, clock: clock, root: root, bus: b, issuer: deps.Issuer}
}

func redemption(g token.Grant) token.Redemption {
	return token.RedemptionFromQuery(g.Query())
}

func (h *harness) sessionDir(t *testing.T, id string) string {
	t.Helper()
	dir, err := h.root.SessionDir(id)
	require.NoError(t, err)
	return dir
}

func (h *harness) record(t *testing.T, id string) *model.Session {
	t.Helper()
	rec, err := h.store.GetSession(context.Background(), id)
	require.NoError(t, err)
	return rec
}

func (h *harness) sessionCount(t *testing.T) int {
	t.Helper()
	n := 0
	require.NoError(t, h.store.ScanSessions(context.Background(), func(*model.Session) error {
		n++
		return nil
	}))
	return n
}

// bufferSink collects a delivery in memory.
type bufferSink struct {
	mu       sync.Mutex
	info     DeliveryInfo
	buf      bytes.Buffer
	prepared atomic.Bool
}

func (s *bufferSink) Prepare(info DeliveryInfo) (io.Writer, error) {
	s.mu.Lock()
	s.info = info
	s.mu.Unlock()
	s.prepared.Store(true)
	return &lockedWriter{mu: &s.mu, w: &s.buf}, nil
}

func (s *bufferSink) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.buf.Bytes()...)
}

func (s *bufferSink) Info() DeliveryInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

var errClientGone = errors.New("client went away")

// failingSink accepts failAfter writes, then fails like a dropped connection.
type failingSink struct {
	failAfter int
	writes    int
}

func (s *failingSink) Prepare(DeliveryInfo) (io.Writer, error) { return s, nil }

func (s *failingSink) Write(p []byte) (int, error) {
	if s.writes >= s.failAfter {
		return 0, errClientGone
	}
	s.writes++
	return len(p), nil
}

// blockingSink blocks its first write until release is closed.
type blockingSink struct {
	writing chan struct{}
	release chan struct{}
	once    sync.Once
	n       atomic.Int64
}

func newBlockingSink() *blockingSink {
	return &blockingSink{writing: make(chan struct{}), release: make(chan struct{})}
}

func (s *blockingSink) Prepare(DeliveryInfo) (io.Writer, error) { return s, nil }

func (s *blockingSink) Write(p []byte) (int, error) {
	s.once.Do(func() { close(s.writing) })
	<-s.release
	s.n.Add(int64(len(p)))
	return len(p), nil
}
