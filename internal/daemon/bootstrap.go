// SPDX-License-Identifier: MIT

// Package daemon wires the download service together and runs it.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/clipgate/internal/api"
	"github.com/ManuGH/clipgate/internal/cache"
	"github.com/ManuGH/clipgate/internal/config"
	"github.com/ManuGH/clipgate/internal/control/admission"
	"github.com/ManuGH/clipgate/internal/control/middleware"
	downloads "github.com/ManuGH/clipgate/internal/domain/session/manager"
	"github.com/ManuGH/clipgate/internal/domain/session/model"
	"github.com/ManuGH/clipgate/internal/domain/session/notify"
	"github.com/ManuGH/clipgate/internal/domain/session/ports"
	"github.com/ManuGH/clipgate/internal/domain/session/store"
	"github.com/ManuGH/clipgate/internal/extractor"
	"github.com/ManuGH/clipgate/internal/extractor/ytdlp"
	"github.com/ManuGH/clipgate/internal/fsutil"
	"github.com/ManuGH/clipgate/internal/health"
	"github.com/ManuGH/clipgate/internal/infra/bus"
	"github.com/ManuGH/clipgate/internal/log"
	redisclient "github.com/ManuGH/clipgate/internal/persistence/redis"
	platformnet "github.com/ManuGH/clipgate/internal/platform/net"
	"github.com/ManuGH/clipgate/internal/telemetry"
	"github.com/ManuGH/clipgate/internal/token"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
)

const (
	cacheCleanupInterval = time.Minute
	notifyPollInterval   = time.Second
)

// BuildOptions override collaborators, mostly for tests.
type BuildOptions struct {
	// Extractor replaces the yt-dlp client.
	Extractor ports.Extractor
	// Redis is used instead of dialling cfg.Redis. The runtime does not close it.
	Redis *goredis.Client
	// Now replaces the wall clock.
	Now func() time.Time
}

// Runtime is the assembled service.
type Runtime struct {
	Config    config.AppConfig
	Downloads *downloads.Manager
	Sweeper   *downloads.Sweeper
	Notifier  *notify.Notifier
	Health    *health.Manager
	Hosts     *platformnet.HostAllowlist
	API       *api.Server

	closers []namedHook
}

// Build opens every backend and wires the download manager and its HTTP API.
// On error everything opened so far is released.
func Build(ctx context.Context, cfg config.AppConfig, opts BuildOptions) (rt *Runtime, err error) {
	logger := log.WithComponent("bootstrap")
	rt = &Runtime{Config: cfg}
	defer func() {
		if err != nil {
			_ = rt.Close(context.WithoutCancel(ctx))
			rt = nil
		}
	}()

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cfg.Version,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return rt, fmt.Errorf("telemetry: %w", err)
	}
	rt.addCloser("telemetry", tp.Shutdown)

	rdb := opts.Redis
	if rdb == nil && needsRedis(cfg) {
		rdb, err = redisclient.Open(ctx, redisclient.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return rt, err
		}
		client := rdb
		rt.addCloser("redis", func(context.Context) error { return client.Close() })
	}

	st, err := store.OpenStateStore(cfg.Store.Backend, cfg.Store.Path, redisFor(cfg.Store.Backend, rdb))
	if err != nil {
		return rt, fmt.Errorf("open session store: %w", err)
	}
	rt.addCloser("session-store", func(context.Context) error { return st.Close() })

	var events ports.Bus
	if rdb != nil {
		events = bus.NewRedisBus(rdb, store.DefaultRedisPrefix)
	} else {
		events = bus.NewMemoryBus()
	}

	var inner cache.Cache
	var redisCache *cache.RedisCache
	switch cfg.Cache.Backend {
	case config.BackendRedis:
		redisCache = cache.NewRedisCache(rdb, store.DefaultRedisPrefix+"meta:", log.WithComponent("cache"))
		inner = redisCache
	default:
		mc := cache.NewMemoryCache(cacheCleanupInterval)
		rt.addCloser("metadata-cache", func(context.Context) error { return mc.Close() })
		inner = mc
	}

	secret, source, err := token.ResolveSecret(cfg.Download.Secret, cfg.Download.SecretFile)
	if err != nil {
		return rt, fmt.Errorf("token secret: %w", err)
	}
	logger.Info().Str("source", source).Str("mode", cfg.Download.TokenMode).Msg("token secret resolved")
	if source == token.SourceEphemeral {
		logger.Warn().Msg("no secret configured; download links become invalid on restart")
	}
	issuer, err := token.NewIssuer(cfg.Download.TokenMode, secret)
	if err != nil {
		return rt, fmt.Errorf("token issuer: %w", err)
	}

	hosts, err := platformnet.NewHostAllowlist(cfg.Download.AllowedHosts)
	if err != nil {
		return rt, fmt.Errorf("allowed hosts: %w", err)
	}
	rt.Hosts = hosts

	artifacts, err := fsutil.NewArtifactRoot(cfg.Download.TempDir)
	if err != nil {
		return rt, fmt.Errorf("artifact root: %w", err)
	}

	ext := opts.Extractor
	if ext == nil {
		ext = ytdlp.New(cfg.Extractor.Bin, cfg.Extractor.Timeout, log.WithComponent("ytdlp"))
	}
	ext = extractor.NewThrottled(ext, cfg.Extractor.RatePerSecond, cfg.Extractor.Burst)

	gate := admission.NewGate(admission.Config{
		Capacity:    cfg.Download.MaxConcurrent,
		QueueLimit:  cfg.Download.QueueLimit,
		WaitTimeout: cfg.Download.GateWaitTimeout,
	})

	mcfg := downloads.DefaultConfig()
	mcfg.TTL = cfg.Download.TokenTTL
	mcfg.DefaultMode = model.Mode(cfg.Download.DefaultMode)
	mcfg.MaxArtifactBytes = cfg.Download.MaxArtifactBytes
	mcfg.MetadataTTL = cfg.Cache.MetadataTTL
	dm, err := downloads.New(mcfg, downloads.Deps{
		Store:     st,
		Gate:      gate,
		Issuer:    issuer,
		Extractor: ext,
		Hosts:     hosts,
		Artifacts: artifacts,
		Bus:       events,
		Cache:     cache.NewMetadataCache(inner),
		Now:       opts.Now,
	})
	if err != nil {
		return rt, err
	}
	rt.Downloads = dm
	// Workers stop before the store closes.
	rt.addCloser("download-manager", dm.Shutdown)
	rt.Sweeper = downloads.NewSweeper(dm, cfg.Download.SweepInterval)
	rt.Notifier = notify.New(notify.Config{PollInterval: notifyPollInterval}, dm, events)

	hm := health.NewManager(cfg.Version)
	hm.RegisterChecker(health.NewFuncChecker("session_store", st.Ping))
	hm.RegisterChecker(health.NewDirChecker("temp_dir", artifacts.Dir()))
	if opts.Extractor == nil {
		hm.RegisterChecker(health.NewBinaryChecker("extractor", cfg.Extractor.Bin))
	}
	if rdb != nil {
		client := rdb
		hm.RegisterChecker(health.NewFuncChecker("redis", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}))
	}
	if redisCache != nil {
		hm.RegisterChecker(health.NewFuncChecker("metadata_cache", redisCache.HealthCheck))
	}
	rt.Health = hm

	proxies, err := middleware.ParseCIDRs(cfg.API.TrustedProxies)
	if err != nil {
		return rt, fmt.Errorf("trusted proxies: %w", err)
	}
	apiCfg := api.Config{
		PublicBaseURL:  cfg.API.PublicBaseURL,
		AllowedOrigins: cfg.API.AllowedOrigins,
		TrustedProxies: proxies,
		EnableMetrics:  cfg.Metrics.Enabled,
	}
	if cfg.API.RateLimitEnabled {
		apiCfg.RateLimitRequests = cfg.API.RateLimitRequests
		apiCfg.RateLimitWindow = cfg.API.RateLimitWindow
	}
	if cfg.Telemetry.Enabled {
		apiCfg.TracingService = cfg.Telemetry.ServiceName
	}
	rt.API = api.New(apiCfg, api.Deps{Downloads: dm, Events: rt.Notifier, Health: hm})

	logger.Info().
		Str("store", cfg.Store.Backend).
		Str("cache", cfg.Cache.Backend).
		Bool("redis", rdb != nil).
		Int("max_concurrent", cfg.Download.MaxConcurrent).
		Dur("token_ttl", cfg.Download.TokenTTL).
		Msg("runtime assembled")
	return rt, nil
}

// Deps returns the server manager dependencies for this runtime.
func (r *Runtime) Deps() Deps {
	d := Deps{
		Logger:     log.WithComponent("daemon"),
		APIHandler: r.API.Handler(),
	}
	if r.Config.Metrics.Enabled {
		d.MetricsHandler = promhttp.Handler()
		d.MetricsAddr = r.Config.Metrics.ListenAddr
	}
	return d
}

// RegisterHooks hands the runtime's cleanup to m, preserving LIFO order.
func (r *Runtime) RegisterHooks(m Manager) {
	for _, c := range r.closers {
		m.RegisterShutdownHook(c.name, c.hook)
	}
	r.closers = nil
}

// ApplyConfig applies the settings that can change without a restart.
func (r *Runtime) ApplyConfig(cfg config.AppConfig) error {
	if err := r.Hosts.Replace(cfg.Download.AllowedHosts); err != nil {
		return fmt.Errorf("allowed hosts: %w", err)
	}
	if cfg.LogLevel != "" {
		if err := log.SetLevel(cfg.LogLevel); err != nil {
			return fmt.Errorf("log level: %w", err)
		}
	}
	r.Config.LogLevel = cfg.LogLevel
	r.Config.Download.AllowedHosts = cfg.Download.AllowedHosts
	return nil
}

// Close releases everything not yet handed to a Manager, newest first.
func (r *Runtime) Close(ctx context.Context) error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].hook(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.closers[i].name, err))
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

func (r *Runtime) addCloser(name string, fn ShutdownHook) {
	r.closers = append(r.closers, namedHook{name: name, hook: fn})
}

func needsRedis(cfg config.AppConfig) bool {
	return cfg.Store.Backend == config.BackendRedis || cfg.Cache.Backend == config.BackendRedis
}

func redisFor(backend string, rdb *goredis.Client) *goredis.Client {
	if backend == config.BackendRedis {
		return rdb
	}
	return nil
}
