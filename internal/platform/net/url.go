// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package net validates and normalizes the source links clients submit.
package net

import (
	"errors"
	"net/url"
	"strings"
)

const maxSourceURLLength = 2048

var (
	ErrURLEmpty       = errors.New("url is required")
	ErrURLTooLong     = errors.New("url is too long")
	ErrURLMalformed   = errors.New("url is malformed")
	ErrURLScheme      = errors.New("url must use http or https")
	ErrURLCredentials = errors.New("url must not contain credentials")
	ErrURLPort        = errors.New("url must not use a custom port")
)

// SanitizeURL removes user info, query parameters and fragments for safe logging.
func SanitizeURL(rawURL string) string {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return "invalid-url-redacted"
	}
	parsedURL.User = nil
	parsedURL.RawQuery = ""
	parsedURL.Fragment = ""
	return parsedURL.String()
}

// ParseSourceURL validates a client supplied link. It enforces:
//   - Scheme must be "http" or "https"
//   - Host must be non-empty
//   - No embedded User/Password credentials
//   - No port other than 80/443
//
// Fragments are dropped; they are never sent upstream.
func ParseSourceURL(s string) (*url.URL, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrURLEmpty
	}
	if len(s) > maxSourceURLLength {
		return nil, ErrURLTooLong
	}
	u, err := url.Parse(s)
	if err != nil {
		return nil, ErrURLMalformed
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, ErrURLScheme
	}
	u.Scheme = scheme

	if u.Hostname() == "" {
		return nil, ErrURLMalformed
	}
	if u.User != nil {
		return nil, ErrURLCredentials
	}
	switch u.Port() {
	case "", "80", "443":
	default:
		return nil, ErrURLPort
	}

	u.Fragment = ""
	u.RawFragment = ""
	return u, nil
}
