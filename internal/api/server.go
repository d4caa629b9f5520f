// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package api exposes download sessions over HTTP.
package api

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/ManuGH/clipgate/internal/control/middleware"
	"github.com/ManuGH/clipgate/internal/domain/session/manager"
	"github.com/ManuGH/clipgate/internal/domain/session/notify"
	"github.com/ManuGH/clipgate/internal/domain/session/ports"
	"github.com/ManuGH/clipgate/internal/health"
	"github.com/ManuGH/clipgate/internal/token"
	"github.com/go-chi/chi/v5"
)

const (
	defaultMaxBodyBytes   = 16 << 10
	defaultKeepAlive      = 15 * time.Second
	defaultRetryAfterSecs = 5
)

// Downloads is the session manager as seen by the transport.
type Downloads interface {
	Inspect(ctx context.Context, rawURL string) (ports.Metadata, error)
	RequestDownload(ctx context.Context, req manager.Request) (manager.Ticket, error)
	ResolveAndStream(ctx context.Context, r token.Redemption, sink manager.Sink) error
	Snapshot(ctx context.Context, id string) (manager.View, error)
	Cancel(ctx context.Context, id string) error
}

// Events streams progress for one session.
type Events interface {
	Subscribe(ctx context.Context, id string) (<-chan notify.Event, error)
}

// Config holds transport settings.
type Config struct {
	// PublicBaseURL prefixes download links; empty yields relative links.
	PublicBaseURL  string
	AllowedOrigins []string
	TrustedProxies []*net.IPNet

	// RateLimitRequests per RateLimitWindow and client IP on /api; 0 disables.
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// TracingService enables request spans when set.
	TracingService string
	EnableMetrics  bool

	MaxBodyBytes int64
	// KeepAlive is the interval of SSE comment frames.
	KeepAlive time.Duration
	// RetryAfter is advertised with busy responses, in seconds.
	RetryAfter int
}

// Deps are the collaborators of the server. Events and Health are optional.
type Deps struct {
	Downloads Downloads
	Events    Events
	Health    *health.Manager
}

// Server routes HTTP requests to the download manager.
type Server struct {
	cfg     Config
	deps    Deps
	handler http.Handler
}

// New builds the server and its router.
func New(cfg Config, deps Deps) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = defaultKeepAlive
	}
	if cfg.RetryAfter <= 0 {
		cfg.RetryAfter = defaultRetryAfterSecs
	}
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")

	s := &Server{cfg: cfg, deps: deps}
	s.handler = s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableCORS:            len(s.cfg.AllowedOrigins) > 0,
		AllowedOrigins:        s.cfg.AllowedOrigins,
		EnableSecurityHeaders: true,
		CSP:                   middleware.DefaultCSP,
		TrustedProxies:        s.cfg.TrustedProxies,
		EnableMetrics:         s.cfg.EnableMetrics,
		TracingService:        s.cfg.TracingService,
		EnableLogging:         true,
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, r, http.StatusNotFound, "request/not_found", "Not Found", "NOT_FOUND", "no such endpoint")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, r, http.StatusMethodNotAllowed, "request/method_not_allowed", "Method Not Allowed", "METHOD_NOT_ALLOWED", "")
	})

	if s.deps.Health != nil {
		r.Get("/healthz", s.deps.Health.ServeHealth)
		r.Get("/readyz", s.deps.Health.ServeReady)
	}

	r.Route("/api", func(r chi.Router) {
		if s.cfg.RateLimitRequests > 0 {
			r.Use(middleware.RateLimit(middleware.RateLimitConfig{
				RequestLimit:   s.cfg.RateLimitRequests,
				WindowSize:     s.cfg.RateLimitWindow,
				TrustedProxies: s.cfg.TrustedProxies,
			}))
		}
		r.Post("/info", s.handleInfo)
		r.Post("/download", s.handleCreate)
		r.Get("/download/file", s.handleFile)
		r.Get("/download/{id}", s.handleSnapshot)
		r.Delete("/download/{id}", s.handleCancel)
		r.Get("/download/{id}/events", s.handleEvents)
	})
	return r
}

// downloadURL renders the link a client redeems the grant with.
func (s *Server) downloadURL(g token.Grant) string {
	return s.cfg.PublicBaseURL + "/api/download/file?" + g.Query().Encode()
}

func (s *Server) eventsURL(id string) string {
	return s.cfg.PublicBaseURL + "/api/download/" + id + "/events"
}
