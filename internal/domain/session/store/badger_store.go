// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ManuGH/clipgate/internal/domain/session/model"
	"github.com/dgraph-io/badger/v4"
)

const (
	badgerSessionPrefix = "sess:"
	badgerLeasePrefix   = "lease:"

	// recordGrace keeps records readable past ExpiresAt so the sweeper can
	// observe them and clean their artifacts.
	recordGrace = time.Hour

	maxConflictRetries = 8
)

// BadgerStore persists sessions in an embedded Badger database.
//   - sessions: key = "sess:<id>" (JSON), TTL = time until expiry + grace
//   - leases:   key = "lease:<key>" (JSON), TTL = lease ttl
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens (or creates) a Badger database in dir.
func OpenBadgerStore(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Close() error { return s.db.Close() }

func (s *BadgerStore) Ping(context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger: database closed")
	}
	return nil
}

func sessionEntry(rec *model.Session) (*badger.Entry, error) {
	buf, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	entry := badger.NewEntry([]byte(badgerSessionPrefix+rec.ID), buf)
	if ttl := time.Until(rec.ExpiresAt) + recordGrace; ttl > 0 {
		entry = entry.WithTTL(ttl)
	}
	return entry, nil
}

func (s *BadgerStore) PutSession(_ context.Context, rec *model.Session) error {
	entry, err := sessionEntry(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(entry)
	})
}

func (s *BadgerStore) GetSession(_ context.Context, id string) (*model.Session, error) {
	var out *model.Session
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(badgerSessionPrefix + id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var rec model.Session
			if err := json.Unmarshal(val, &rec); err != nil {
				return err
			}
			out = &rec
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateSession retries on transaction conflicts; fn may therefore run more
// than once and must not have side effects outside rec.
func (s *BadgerStore) UpdateSession(ctx context.Context, id string, fn func(*model.Session) error) (*model.Session, error) {
	key := []byte(badgerSessionPrefix + id)
	for attempt := 0; ; attempt++ {
		var out model.Session
		err := s.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(key)
			if err != nil {
				return err
			}
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &out)
			}); err != nil {
				return err
			}
			if err := fn(&out); err != nil {
				return err
			}
			entry, err := sessionEntry(&out)
			if err != nil {
				return err
			}
			return txn.SetEntry(entry)
		})
		switch {
		case err == nil:
			return &out, nil
		case errors.Is(err, badger.ErrKeyNotFound):
			return nil, ErrNotFound
		case errors.Is(err, badger.ErrConflict) && attempt < maxConflictRetries:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			continue
		default:
			return nil, err
		}
	}
}

func (s *BadgerStore) ScanSessions(ctx context.Context, fn func(*model.Session) error) error {
	var recs []*model.Session
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(badgerSessionPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := it.Item().Value(func(val []byte) error {
				var rec model.Session
				if err := json.Unmarshal(val, &rec); err != nil {
					return err
				}
				recs = append(recs, &rec)
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, rec := range recs {
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

func (s *BadgerStore) DeleteSession(_ context.Context, id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(badgerSessionPrefix + id))
	})
}

type leaseEnvelope struct {
	Owner     string    `json:"owner"`
	ExpiresAt time.Time `json:"expiresAt"`
}

var errLeaseHeld = errors.New("lease held")

// Badger TTLs have second granularity, so the envelope carries the precise
// deadline and the entry TTL is rounded up.
func leaseEntry(key, owner string, ttl time.Duration) (*badger.Entry, time.Time, error) {
	exp := time.Now().Add(ttl)
	buf, err := json.Marshal(leaseEnvelope{Owner: owner, ExpiresAt: exp})
	if err != nil {
		return nil, time.Time{}, err
	}
	return badger.NewEntry([]byte(badgerLeasePrefix+key), buf).WithTTL(ttl + time.Second), exp, nil
}

func readLease(txn *badger.Txn, key string) (*leaseEnvelope, error) {
	item, err := txn.Get([]byte(badgerLeasePrefix + key))
	if err != nil {
		return nil, err
	}
	var env leaseEnvelope
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &env)
	}); err != nil {
		return nil, err
	}
	return &env, nil
}

func (s *BadgerStore) TryAcquireLease(_ context.Context, key, owner string, ttl time.Duration) (Lease, bool, error) {
	if ttl <= 0 {
		return nil, false, ErrInvalidTTL
	}
	var held *leaseEnvelope
	var exp time.Time
	err := s.db.Update(func(txn *badger.Txn) error {
		cur, err := readLease(txn, key)
		if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if cur != nil && cur.Owner != owner && time.Now().Before(cur.ExpiresAt) {
			held = cur
			return errLeaseHeld
		}
		entry, e, err := leaseEntry(key, owner, ttl)
		if err != nil {
			return err
		}
		exp = e
		return txn.SetEntry(entry)
	})
	switch {
	case errors.Is(err, errLeaseHeld):
		return &lease{key: key, owner: held.Owner, exp: held.ExpiresAt}, false, nil
	case errors.Is(err, badger.ErrConflict):
		// Another writer raced us for the same key.
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}
	return &lease{key: key, owner: owner, exp: exp}, true, nil
}

func (s *BadgerStore) RenewLease(_ context.Context, key, owner string, ttl time.Duration) (Lease, bool, error) {
	if ttl <= 0 {
		return nil, false, ErrInvalidTTL
	}
	var exp time.Time
	err := s.db.Update(func(txn *badger.Txn) error {
		cur, err := readLease(txn, key)
		if err != nil {
			return err
		}
		if cur.Owner != owner || !time.Now().Before(cur.ExpiresAt) {
			return errLeaseHeld
		}
		entry, e, err := leaseEntry(key, owner, ttl)
		if err != nil {
			return err
		}
		exp = e
		return txn.SetEntry(entry)
	})
	if errors.Is(err, badger.ErrKeyNotFound) || errors.Is(err, errLeaseHeld) || errors.Is(err, badger.ErrConflict) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &lease{key: key, owner: owner, exp: exp}, true, nil
}

func (s *BadgerStore) ReleaseLease(_ context.Context, key, owner string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		cur, err := readLease(txn, key)
		if err != nil {
			return err
		}
		if cur.Owner != owner {
			return nil
		}
		return txn.Delete([]byte(badgerLeasePrefix + key))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	return err
}
