// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package token mints and verifies download grants.
//
// Two strategies exist and a deployment uses exactly one:
//
//   - signed: the grant carries the session id, an expiry and an
//     HMAC-SHA256 signature over both.
//   - sealed: the grant carries an AES-256-GCM envelope describing the
//     artifact, plus an HMAC over the envelope and expiry.
//
// Every rejection is reported as ErrInvalid. Callers must not expose the
// wrapped reason to clients.
package token
