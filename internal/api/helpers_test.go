// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ManuGH/clipgate/internal/control/admission"
	"github.com/ManuGH/clipgate/internal/domain/session/manager"
	"github.com/ManuGH/clipgate/internal/domain/session/model"
	"github.com/ManuGH/clipgate/internal/domain/session/notify"
	"github.com/ManuGH/clipgate/internal/domain/session/ports"
	"github.com/ManuGH/clipgate/internal/domain/session/store"
	"github.com/ManuGH/clipgate/internal/fsutil"
	"github.com/ManuGH/clipgate/internal/health"
	"github.com/ManuGH/clipgate/internal/infra/bus"
	platformnet "github.com/ManuGH/clipgate/internal/platform/net"
	"github.com/ManuGH/clipgate/internal/token"
	"github.com/stretchr/testify/require"
)

const testURL = "https://www.tiktok.com/@a/video/1"

// stubExtractor writes a fixed artifact. With hold set, downloads wait for it
// to be closed.
type stubExtractor struct {
	content []byte
	title   string
	fail    error
	hold    chan struct{}
}

func (s *stubExtractor) FetchMetadata(context.Context, string) (ports.Metadata, error) {
	if s.fail != nil {
		return ports.Metadata{}, s.fail
	}
	return ports.Metadata{Title: s.title, Extension: "mp4", DurationSeconds: 12}, nil
}

func (s *stubExtractor) FetchArtifact(ctx context.Context, req ports.FetchRequest, _ ports.ProgressFunc) (ports.Artifact, error) {
	if s.hold != nil {
		select {
		case <-s.hold:
		case <-ctx.Done():
			return ports.Artifact{}, ctx.Err()
		}
	}
	if s.fail != nil {
		return ports.Artifact{}, s.fail
	}
	path := filepath.Join(req.OutputDir, "artifact.mp4")
	if err := os.WriteFile(path, s.content, 0o600); err != nil {
		return ports.Artifact{}, err
	}
	return ports.Artifact{
		Path:     path,
		Size:     int64(len(s.content)),
		MimeType: "video/mp4",
		Metadata: ports.Metadata{Title: s.title, Extension: "mp4"},
	}, nil
}

type fixture struct {
	srv   *Server
	mgr   *manager.Manager
	ext   *stubExtractor
	store *store.MemoryStore
}

type fixtureOption func(*manager.Config, *Config)

func withMode(mode model.Mode) fixtureOption {
	return func(c *manager.Config, _ *Config) { c.DefaultMode = mode }
}

func withAPIConfig(fn func(*Config)) fixtureOption {
	return func(_ *manager.Config, c *Config) { fn(c) }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	mcfg := manager.DefaultConfig()
	mcfg.ProgressInterval = time.Millisecond
	acfg := Config{PublicBaseURL: "https://dl.example.com/", KeepAlive: time.Hour}
	for _, o := range opts {
		o(&mcfg, &acfg)
	}

	root, err := fsutil.NewArtifactRoot(t.TempDir())
	require.NoError(t, err)
	hosts, err := platformnet.NewHostAllowlist([]string{"tiktok.com", "instagram.com"})
	require.NoError(t, err)
	issuer, err := token.NewIssuer(token.ModeSigned, []byte("api-test-secret-with-entropy"))
	require.NoError(t, err)

	st := store.NewMemoryStore()
	b := bus.NewMemoryBus()
	ext := &stubExtractor{content: bytes.Repeat([]byte("clip"), 4096), title: "Holiday Clip"}
	m, err := manager.New(mcfg, manager.Deps{
		Store:     st,
		Gate:      admission.NewGate(admission.Config{Capacity: 2}),
		Issuer:    issuer,
		Extractor: ext,
		Hosts:     hosts,
		Artifacts: root,
		Bus:       b,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})

	hm := health.NewManager("test")
	srv := New(acfg, Deps{
		Downloads: m,
		Events:    notify.New(notify.Config{PollInterval: 5 * time.Millisecond}, m, b),
		Health:    hm,
	})
	return &fixture{srv: srv, mgr: m, ext: ext, store: st}
}

func (f *fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

// create posts a download request and returns the decoded response.
func (f *fixture) create(t *testing.T, body string) downloadResponse {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/download", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp downloadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

// relative strips the public base URL from a link.
func relative(t *testing.T, link string) string {
	t.Helper()
	require.True(t, strings.HasPrefix(link, "https://dl.example.com/"), link)
	return strings.TrimPrefix(link, "https://dl.example.com")
}

type problemBody struct {
	Type      string `json:"type"`
	Title     string `json:"title"`
	Status    int    `json:"status"`
	Code      string `json:"code"`
	Detail    string `json:"detail"`
	RequestID string `json:"requestId"`
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) problemBody {
	t.Helper()
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	var p problemBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	return p
}
