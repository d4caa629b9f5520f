// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package store persists download session records and per-session leases.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ManuGH/clipgate/internal/domain/session/model"
)

var (
	// ErrNotFound is returned by UpdateSession when the record does not exist.
	ErrNotFound = errors.New("session not found")
	// ErrInvalidTTL is returned by lease operations with a non-positive ttl.
	ErrInvalidTTL = errors.New("invalid lease ttl")
)

// Lease is a single-writer lock on a key. The owner string must be stable for
// the lifetime of the holder.
type Lease interface {
	Key() string
	Owner() string
	ExpiresAt() time.Time
}

// StateStore is the system of record for download sessions.
//
// UpdateSession is the only mutation path for existing records: fn runs under
// the backend's serialization so concurrent transitions never interleave.
type StateStore interface {
	PutSession(ctx context.Context, s *model.Session) error
	// GetSession returns the session record. If not found, it returns (nil, nil).
	GetSession(ctx context.Context, id string) (*model.Session, error)
	UpdateSession(ctx context.Context, id string, fn func(*model.Session) error) (*model.Session, error)
	// ScanSessions calls fn with a copy of every record. Iteration stops at
	// the first error returned by fn.
	ScanSessions(ctx context.Context, fn func(*model.Session) error) error
	// DeleteSession removes the record. Deleting a missing record is not an error.
	DeleteSession(ctx context.Context, id string) error

	TryAcquireLease(ctx context.Context, key, owner string, ttl time.Duration) (Lease, bool, error)
	RenewLease(ctx context.Context, key, owner string, ttl time.Duration) (Lease, bool, error)
	ReleaseLease(ctx context.Context, key, owner string) error

	// Ping reports whether the backend is usable.
	Ping(ctx context.Context) error
	Close() error
}

// DeliveryLeaseKey is the lease key that guards delivery and cleanup of a
// session's artifact.
func DeliveryLeaseKey(sessionID string) string {
	return "deliver:" + sessionID
}

type lease struct {
	key   string
	owner string
	exp   time.Time
}

func (l *lease) Key() string          { return l.key }
func (l *lease) Owner() string        { return l.owner }
func (l *lease) ExpiresAt() time.Time { return l.exp }
