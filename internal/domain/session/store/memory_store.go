// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import (
	"context"
	"sync"
	"time"

	"github.com/ManuGH/clipgate/internal/domain/session/model"
)

type leaseState struct {
	owner string
	exp   time.Time
}

// MemoryStore keeps sessions in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*model.Session
	leases   map[string]leaseState
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*model.Session),
		leases:   make(map[string]leaseState),
	}
}

func (m *MemoryStore) PutSession(_ context.Context, rec *model.Session) error {
	m.mu.Lock()
	m.sessions[rec.ID] = rec.Clone()
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) GetSession(_ context.Context, id string) (*model.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	return rec.Clone(), nil
}

func (m *MemoryStore) UpdateSession(_ context.Context, id string, fn func(*model.Session) error) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	work := rec.Clone()
	if err := fn(work); err != nil {
		return nil, err
	}
	m.sessions[id] = work
	return work.Clone(), nil
}

func (m *MemoryStore) ScanSessions(ctx context.Context, fn func(*model.Session) error) error {
	m.mu.RLock()
	snapshot := make([]*model.Session, 0, len(m.sessions))
	for _, rec := range m.sessions {
		snapshot = append(snapshot, rec.Clone())
	}
	m.mu.RUnlock()

	for _, rec := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryStore) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) TryAcquireLease(_ context.Context, key, owner string, ttl time.Duration) (Lease, bool, error) {
	if ttl <= 0 {
		return nil, false, ErrInvalidTTL
	}
	now := time.Now()
	deadline := now.Add(ttl)
	m.mu.Lock()
	defer m.mu.Unlock()
	ls, ok := m.leases[key]
	if ok && !now.Before(ls.exp) {
		delete(m.leases, key)
		ok = false
	}
	if ok && ls.owner != owner {
		return &lease{key: key, owner: ls.owner, exp: ls.exp}, false, nil
	}
	// Re-entry by the same owner extends the lease.
	m.leases[key] = leaseState{owner: owner, exp: deadline}
	return &lease{key: key, owner: owner, exp: deadline}, true, nil
}

func (m *MemoryStore) RenewLease(_ context.Context, key, owner string, ttl time.Duration) (Lease, bool, error) {
	if ttl <= 0 {
		return nil, false, ErrInvalidTTL
	}
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.leases[key]
	if !ok || st.owner != owner || !now.Before(st.exp) {
		return nil, false, nil // lost
	}
	st.exp = now.Add(ttl)
	m.leases[key] = st
	return &lease{key: key, owner: owner, exp: st.exp}, true, nil
}

func (m *MemoryStore) ReleaseLease(_ context.Context, key, owner string) error {
	m.mu.Lock()
	if st, ok := m.leases[key]; ok && st.owner == owner {
		delete(m.leases, key)
	}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }
