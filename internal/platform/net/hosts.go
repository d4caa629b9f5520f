// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package net

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"sync/atomic"

	"golang.org/x/net/idna"
	"golang.org/x/net/publicsuffix"
)

// ErrHostNotAllowed indicates the link's host is outside the allow-list.
var ErrHostNotAllowed = errors.New("host not allowed")

// NormalizeHost validates and normalizes a host for comparison. IDNA hosts are
// converted to their ASCII form; a leading "www." and trailing dot are dropped.
func NormalizeHost(raw string) (string, error) {
	host := strings.TrimSpace(raw)
	if host == "" {
		return "", fmt.Errorf("host is empty")
	}
	if strings.ContainsAny(host, "/@%") || strings.Contains(host, "://") {
		return "", fmt.Errorf("invalid host %q", raw)
	}
	if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	}
	if ip := net.ParseIP(host); ip != nil {
		return strings.ToLower(ip.String()), nil
	}
	if strings.Contains(host, ":") {
		return "", fmt.Errorf("host must not include port: %s", raw)
	}
	host = strings.TrimSuffix(host, ".")
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", fmt.Errorf("invalid host %q: %w", raw, err)
	}
	ascii = strings.TrimPrefix(strings.ToLower(ascii), "www.")
	if ascii == "" {
		return "", fmt.Errorf("host is empty")
	}
	return ascii, nil
}

// HostAllowlist matches hosts against a set of allowed domains. A host is
// allowed when it equals an entry or is a subdomain of it. The set can be
// swapped at runtime.
type HostAllowlist struct {
	hosts atomic.Pointer[map[string]struct{}]
}

// NewHostAllowlist builds an allow-list from raw host entries.
func NewHostAllowlist(entries []string) (*HostAllowlist, error) {
	a := &HostAllowlist{}
	if err := a.Replace(entries); err != nil {
		return nil, err
	}
	return a, nil
}

// Replace atomically swaps the allowed set. On error the old set is kept.
func (a *HostAllowlist) Replace(entries []string) error {
	set := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		h, err := NormalizeHost(e)
		if err != nil {
			return err
		}
		set[h] = struct{}{}
	}
	a.hosts.Store(&set)
	return nil
}

// Hosts returns the normalized entries.
func (a *HostAllowlist) Hosts() []string {
	set := a.hosts.Load()
	if set == nil {
		return nil
	}
	out := make([]string, 0, len(*set))
	for h := range *set {
		out = append(out, h)
	}
	return out
}

// Match returns the registrable domain of host if it is allowed.
// IP literals and bare public suffixes are never allowed.
func (a *HostAllowlist) Match(rawHost string) (string, error) {
	host, err := NormalizeHost(rawHost)
	if err != nil {
		return "", ErrHostNotAllowed
	}
	if net.ParseIP(host) != nil {
		return "", ErrHostNotAllowed
	}
	registrable, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return "", ErrHostNotAllowed
	}

	set := a.hosts.Load()
	if set == nil {
		return "", ErrHostNotAllowed
	}
	// Walk from the full host up to the registrable domain.
	for candidate := host; ; {
		if _, ok := (*set)[candidate]; ok {
			return registrable, nil
		}
		if candidate == registrable {
			break
		}
		i := strings.IndexByte(candidate, '.')
		if i < 0 {
			break
		}
		candidate = candidate[i+1:]
	}
	return "", ErrHostNotAllowed
}
