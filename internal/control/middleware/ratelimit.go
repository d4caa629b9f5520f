// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package middleware

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/ManuGH/clipgate/internal/control/http/problem"
	"github.com/ManuGH/clipgate/internal/metrics"
	"github.com/go-chi/httprate"
)

// RateLimitConfig holds configuration for rate limiting middleware.
type RateLimitConfig struct {
	// RequestLimit is the maximum number of requests allowed in the window.
	RequestLimit int
	// WindowSize is the time window for rate limiting. Defaults to one minute.
	WindowSize time.Duration
	// TrustedProxies may set X-Forwarded-For for the client key.
	TrustedProxies []*net.IPNet
	// KeyFunc overrides the client key. Defaults to the client IP.
	KeyFunc func(r *http.Request) (string, error)
}

// RateLimit creates a sliding-window rate limiter using the httprate library.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	window := cfg.WindowSize
	if window <= 0 {
		window = time.Minute
	}
	keyFunc := cfg.KeyFunc
	if keyFunc == nil {
		trusted := cfg.TrustedProxies
		keyFunc = func(r *http.Request) (string, error) {
			return ClientIP(r, trusted), nil
		}
	}

	return httprate.Limit(
		cfg.RequestLimit,
		window,
		httprate.WithKeyFuncs(keyFunc),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			metrics.HTTPRateLimitedTotal.WithLabelValues(routePattern(r)).Inc()
			w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
			problem.Write(w, r, http.StatusTooManyRequests, "system/rate_limited", "Too Many Requests", "RATE_LIMITED",
				"Too many requests. Please try again later.", nil)
		}),
	)
}
