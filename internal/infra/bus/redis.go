// SPDX-License-Identifier: MIT

package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/ManuGH/clipgate/internal/domain/session/ports"
	"github.com/ManuGH/clipgate/internal/metrics"
	"github.com/redis/go-redis/v9"
)

// RedisBus publishes signals over Redis pub/sub so observers connected to a
// different replica see changes made elsewhere.
type RedisBus struct {
	client *redis.Client
	prefix string
}

var _ ports.Bus = (*RedisBus)(nil)

// NewRedisBus wraps an established client. Channel names are prefixed.
func NewRedisBus(client *redis.Client, prefix string) *RedisBus {
	return &RedisBus{client: client, prefix: prefix}
}

func (b *RedisBus) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := b.client.Publish(ctx, b.prefix+topic, payload).Err(); err != nil {
		return fmt.Errorf("publish topic %q: %w", topic, err)
	}
	return nil
}

// Subscribe returns once the subscription is confirmed by the server.
func (b *RedisBus) Subscribe(ctx context.Context, topic string) (ports.Subscription, error) {
	ps := b.client.Subscribe(ctx, b.prefix+topic)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe topic %q: %w", topic, err)
	}

	s := &redisSub{
		ps:   ps,
		ch:   make(chan []byte, subscriberBuffer),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go s.pump()
	return s, nil
}

type redisSub struct {
	ps   *redis.PubSub
	ch   chan []byte
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func (s *redisSub) pump() {
	defer close(s.done)
	defer close(s.ch)
	in := s.ps.Channel()
	for {
		select {
		case <-s.stop:
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			select {
			case s.ch <- []byte(msg.Payload):
			default:
				metrics.BusDroppedTotal.WithLabelValues("redis").Inc()
			}
		}
	}
}

func (s *redisSub) C() <-chan []byte { return s.ch }

func (s *redisSub) Close() error {
	var err error
	s.once.Do(func() {
		close(s.stop)
		err = s.ps.Close()
		<-s.done
	})
	return err
}
