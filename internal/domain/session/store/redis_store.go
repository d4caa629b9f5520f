// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/clipgate/internal/domain/session/model"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultRedisPrefix namespaces every key the store writes.
	DefaultRedisPrefix = "clipgate:"

	minRecordTTL = time.Minute
)

var (
	// Returns the owner holding the lease after the call.
	acquireLeaseScript = redis.NewScript(`
local cur = redis.call("GET", KEYS[1])
if (not cur) or cur == ARGV[1] then
  redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
  return ARGV[1]
end
return cur
`)
	renewLeaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)
	releaseLeaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)
)

// RedisStore shares session state between replicas through Redis. The client
// is owned by the caller; Close does not close it.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore wraps an established client.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) sessionKey(id string) string { return s.prefix + "sess:" + id }
func (s *RedisStore) leaseKey(key string) string  { return s.prefix + "lease:" + key }

func recordTTL(rec *model.Session) time.Duration {
	ttl := time.Until(rec.ExpiresAt) + recordGrace
	if ttl < minRecordTTL {
		ttl = minRecordTTL
	}
	return ttl
}

func (s *RedisStore) PutSession(ctx context.Context, rec *model.Session) error {
	buf, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return s.client.Set(ctx, s.sessionKey(rec.ID), buf, recordTTL(rec)).Err()
}

func (s *RedisStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	raw, err := s.client.Get(ctx, s.sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec model.Session
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &rec, nil
}

// UpdateSession uses optimistic WATCH/MULTI; fn may run more than once.
func (s *RedisStore) UpdateSession(ctx context.Context, id string, fn func(*model.Session) error) (*model.Session, error) {
	key := s.sessionKey(id)
	var out model.Session

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		out = model.Session{}
		if err := json.Unmarshal(raw, &out); err != nil {
			return fmt.Errorf("decode session: %w", err)
		}
		if err := fn(&out); err != nil {
			return err
		}
		buf, err := json.Marshal(&out)
		if err != nil {
			return fmt.Errorf("encode session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, buf, recordTTL(&out))
			return nil
		})
		return err
	}

	for attempt := 0; attempt <= maxConflictRetries; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return &out, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("update session %s: %w", id, redis.TxFailedErr)
}

func (s *RedisStore) ScanSessions(ctx context.Context, fn func(*model.Session) error) error {
	iter := s.client.Scan(ctx, 0, s.sessionKey("*"), 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	for _, key := range keys {
		raw, err := s.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue // deleted during the scan
		}
		if err != nil {
			return err
		}
		var rec model.Session
		if err := json.Unmarshal(raw, &rec); err != nil {
			return fmt.Errorf("decode session: %w", err)
		}
		if err := fn(&rec); err != nil {
			return err
		}
	}
	return nil
}

func (s *RedisStore) DeleteSession(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.sessionKey(id)).Err()
}

func (s *RedisStore) TryAcquireLease(ctx context.Context, key, owner string, ttl time.Duration) (Lease, bool, error) {
	if ttl <= 0 {
		return nil, false, ErrInvalidTTL
	}
	exp := time.Now().Add(ttl)
	holder, err := acquireLeaseScript.Run(ctx, s.client, []string{s.leaseKey(key)}, owner, ttl.Milliseconds()).Text()
	if err != nil {
		return nil, false, err
	}
	if holder != owner {
		return &lease{key: key, owner: holder}, false, nil
	}
	return &lease{key: key, owner: owner, exp: exp}, true, nil
}

func (s *RedisStore) RenewLease(ctx context.Context, key, owner string, ttl time.Duration) (Lease, bool, error) {
	if ttl <= 0 {
		return nil, false, ErrInvalidTTL
	}
	exp := time.Now().Add(ttl)
	n, err := renewLeaseScript.Run(ctx, s.client, []string{s.leaseKey(key)}, owner, ttl.Milliseconds()).Int64()
	if err != nil {
		return nil, false, err
	}
	if n == 0 {
		return nil, false, nil
	}
	return &lease{key: key, owner: owner, exp: exp}, true, nil
}

func (s *RedisStore) ReleaseLease(ctx context.Context, key, owner string) error {
	return releaseLeaseScript.Run(ctx, s.client, []string{s.leaseKey(key)}, owner).Err()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error { return nil }
