// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"
)

// OpenStateStore creates a StateStore for the configured backend. path is a
// file for sqlite and a directory for badger. client is required for redis.
func OpenStateStore(backend, path string, client *redis.Client) (StateStore, error) {
	switch backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		if path == "" {
			return nil, fmt.Errorf("sqlite backend requires a path")
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
		return NewSqliteStore(path)
	case "badger":
		if path == "" {
			return nil, fmt.Errorf("badger backend requires a path")
		}
		return OpenBadgerStore(path)
	case "redis":
		if client == nil {
			return nil, fmt.Errorf("redis backend requires a redis client")
		}
		return NewRedisStore(client, DefaultRedisPrefix), nil
	default:
		return nil, fmt.Errorf("unknown store backend: %s", backend)
	}
}
