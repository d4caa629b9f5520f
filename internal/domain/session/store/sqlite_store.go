// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ManuGH/clipgate/internal/domain/session/model"
	"github.com/ManuGH/clipgate/internal/persistence/sqlite"
)

const schemaVersion = 1

// SqliteStore implements StateStore using SQLite. Records are stored as JSON
// next to the columns the sweeper and operators filter on.
type SqliteStore struct {
	DB *sql.DB

	// writeMu serializes read-modify-write transactions. SQLite cannot upgrade
	// concurrent read transactions to writers without SQLITE_BUSY.
	writeMu sync.Mutex
}

// NewSqliteStore opens (and migrates) the session database at dbPath.
func NewSqliteStore(dbPath string) (*SqliteStore, error) {
	db, err := sqlite.Open(dbPath, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}

	s := &SqliteStore{DB: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("session store: migration failed: %w", err)
	}
	return s, nil
}

func (s *SqliteStore) Close() error {
	return s.DB.Close()
}

// Ping runs a quick integrity check against the database.
func (s *SqliteStore) Ping(ctx context.Context) error {
	return sqlite.QuickCheck(ctx, s.DB)
}

func (s *SqliteStore) migrate() error {
	var currentVersion int
	if err := s.DB.QueryRow("PRAGMA user_version").Scan(&currentVersion); err != nil {
		return err
	}
	if currentVersion >= schemaVersion {
		return nil
	}

	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		state TEXT NOT NULL,
		mode TEXT NOT NULL,
		source_host TEXT NOT NULL,
		created_at_ms INTEGER NOT NULL,
		updated_at_ms INTEGER NOT NULL,
		expires_at_ms INTEGER NOT NULL,
		record_json TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_at_ms);
	CREATE INDEX IF NOT EXISTS idx_sessions_state ON sessions(state);

	CREATE TABLE IF NOT EXISTS leases (
		key TEXT PRIMARY KEY,
		owner TEXT NOT NULL,
		expires_at_ms INTEGER NOT NULL
	);
	`
	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

const upsertSession = `
	INSERT INTO sessions (session_id, state, mode, source_host, created_at_ms, updated_at_ms, expires_at_ms, record_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(session_id) DO UPDATE SET
		state = excluded.state,
		mode = excluded.mode,
		source_host = excluded.source_host,
		updated_at_ms = excluded.updated_at_ms,
		expires_at_ms = excluded.expires_at_ms,
		record_json = excluded.record_json
`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func writeSession(ctx context.Context, db execer, rec *model.Session) error {
	buf, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	_, err = db.ExecContext(ctx, upsertSession,
		rec.ID, string(rec.State), string(rec.Mode), rec.SourceHost,
		rec.CreatedAt.UnixMilli(), rec.UpdatedAt.UnixMilli(), rec.ExpiresAt.UnixMilli(),
		string(buf),
	)
	return err
}

func (s *SqliteStore) PutSession(ctx context.Context, rec *model.Session) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return writeSession(ctx, s.DB, rec)
}

func (s *SqliteStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	return scanSession(s.DB.QueryRowContext(ctx, "SELECT record_json FROM sessions WHERE session_id = ?", id))
}

func (s *SqliteStore) UpdateSession(ctx context.Context, id string, fn func(*model.Session) error) (*model.Session, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	rec, err := scanSession(tx.QueryRowContext(ctx, "SELECT record_json FROM sessions WHERE session_id = ?", id))
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	if err := fn(rec); err != nil {
		return nil, err
	}
	if err := writeSession(ctx, tx, rec); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *SqliteStore) ScanSessions(ctx context.Context, fn func(*model.Session) error) error {
	rows, err := s.DB.QueryContext(ctx, "SELECT record_json FROM sessions ORDER BY expires_at_ms")
	if err != nil {
		return err
	}
	// Drain before invoking fn so callbacks may write.
	var recs []*model.Session
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			_ = rows.Close()
			return err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()

	for _, rec := range recs {
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

func (s *SqliteStore) DeleteSession(ctx context.Context, id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.DB.ExecContext(ctx, "DELETE FROM sessions WHERE session_id = ?", id)
	return err
}

func (s *SqliteStore) TryAcquireLease(ctx context.Context, key, owner string, ttl time.Duration) (Lease, bool, error) {
	if ttl <= 0 {
		return nil, false, ErrInvalidTTL
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()
	expiresAt := now.Add(ttl).UnixMilli()

	var currentOwner string
	var currentExpires int64
	err = tx.QueryRowContext(ctx, "SELECT owner, expires_at_ms FROM leases WHERE key = ?", key).Scan(&currentOwner, &currentExpires)
	if err == nil {
		if currentExpires > now.UnixMilli() && currentOwner != owner {
			return &lease{key: key, owner: currentOwner, exp: time.UnixMilli(currentExpires)}, false, nil
		}
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, err
	}

	if _, err := tx.ExecContext(ctx, "INSERT OR REPLACE INTO leases (key, owner, expires_at_ms) VALUES (?, ?, ?)", key, owner, expiresAt); err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	return &lease{key: key, owner: owner, exp: time.UnixMilli(expiresAt)}, true, nil
}

func (s *SqliteStore) RenewLease(ctx context.Context, key, owner string, ttl time.Duration) (Lease, bool, error) {
	if ttl <= 0 {
		return nil, false, ErrInvalidTTL
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	now := time.Now()
	expiresAt := now.Add(ttl).UnixMilli()
	res, err := s.DB.ExecContext(ctx,
		"UPDATE leases SET expires_at_ms = ? WHERE key = ? AND owner = ? AND expires_at_ms > ?",
		expiresAt, key, owner, now.UnixMilli())
	if err != nil {
		return nil, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}
	if n == 0 {
		return nil, false, nil
	}
	return &lease{key: key, owner: owner, exp: time.UnixMilli(expiresAt)}, true, nil
}

func (s *SqliteStore) ReleaseLease(ctx context.Context, key, owner string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.DB.ExecContext(ctx, "DELETE FROM leases WHERE key = ? AND owner = ?", key, owner)
	return err
}

func scanSession(scanner interface {
	Scan(dest ...any) error
}) (*model.Session, error) {
	var raw string
	if err := scanner.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	var rec model.Session
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &rec, nil
}
