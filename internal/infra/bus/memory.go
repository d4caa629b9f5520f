// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package bus implements the session change-signal transport in memory and
// over Redis pub/sub.
package bus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ManuGH/clipgate/internal/domain/session/ports"
	"github.com/ManuGH/clipgate/internal/log"
	"github.com/ManuGH/clipgate/internal/metrics"
)

const (
	subscriberBuffer = 16
	dropLogEvery     = 100
)

var dropCount atomic.Uint64

// MemoryBus is an in-process pub/sub. Signals are best effort: a subscriber
// whose buffer is full misses that signal. Observers re-read the registry, so
// a later signal or poll catches them up.
type MemoryBus struct {
	mu   sync.RWMutex
	subs map[string][]*memSub
}

var _ ports.Bus = (*MemoryBus)(nil)

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string][]*memSub)}
}

func (b *MemoryBus) Publish(ctx context.Context, topic string, payload []byte) error {
	if ctx == nil {
		return fmt.Errorf("publish context is nil")
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("publish topic %q: %w", topic, err)
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs[topic] {
		select {
		case s.ch <- payload:
		default:
			metrics.BusDroppedTotal.WithLabelValues("memory").Inc()
			if n := dropCount.Add(1); n%dropLogEvery == 1 {
				log.L().Debug().
					Str("topic", topic).
					Uint64("dropped", n).
					Msg("memory bus subscriber full, signal dropped")
			}
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(_ context.Context, topic string) (ports.Subscription, error) {
	s := &memSub{b: b, topic: topic, ch: make(chan []byte, subscriberBuffer)}
	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], s)
	b.mu.Unlock()
	return s, nil
}

// Subscribers returns the number of live subscriptions on topic.
func (b *MemoryBus) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

type memSub struct {
	b      *MemoryBus
	topic  string
	ch     chan []byte
	closed bool
}

func (s *memSub) C() <-chan []byte {
	return s.ch
}

// Close unsubscribes and closes the channel. Publish holds the read lock
// while sending, so closing under the write lock is safe.
func (s *memSub) Close() error {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	lst := s.b.subs[s.topic]
	out := lst[:0]
	for _, c := range lst {
		if c != s {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		delete(s.b.subs, s.topic)
	} else {
		s.b.subs[s.topic] = out
	}
	close(s.ch)
	return nil
}
