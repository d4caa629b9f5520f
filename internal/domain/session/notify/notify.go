// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package notify turns session registry changes into a per-session stream of
// progress events.
//
// A subscription emits the current view at once, then one event per visible
// change. Changes are picked up from bus signals and, as a fallback, from a
// periodic re-read of the registry. The stream ends with exactly one terminal
// event, after which the channel is closed.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ManuGH/clipgate/internal/domain/session/manager"
	"github.com/ManuGH/clipgate/internal/domain/session/model"
	"github.com/ManuGH/clipgate/internal/domain/session/ports"
	"github.com/ManuGH/clipgate/internal/log"
	"github.com/ManuGH/clipgate/internal/metrics"
)

// DefaultPollInterval is used when Config.PollInterval is not set.
const DefaultPollInterval = time.Second

// Event is one observation of a session.
type Event struct {
	ID         string      `json:"id"`
	State      model.State `json:"state"`
	Percent    float64     `json:"percent"`
	ETA        string      `json:"eta"`
	Speed      string      `json:"speed"`
	Downloaded string      `json:"downloaded"`
	Total      string      `json:"total,omitempty"`
	FileName   string      `json:"fileName,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// Terminal reports whether no further events follow e.
func (e Event) Terminal() bool {
	return e.State.IsTerminal()
}

// EventOf projects a view into an event.
func EventOf(v manager.View) Event {
	return Event{
		ID:         v.ID,
		State:      v.State,
		Percent:    v.Progress.Percent,
		ETA:        v.ETA,
		Speed:      v.Speed,
		Downloaded: v.Downloaded,
		Total:      v.Total,
		FileName:   v.FileName,
		Error:      v.Error,
	}
}

// Snapshotter reads the current view of a session.
type Snapshotter interface {
	Snapshot(ctx context.Context, id string) (manager.View, error)
}

type Config struct {
	PollInterval time.Duration
}

// Notifier fans session changes out to subscribers. Bus is optional; without
// it subscribers rely on polling alone.
type Notifier struct {
	src  Snapshotter
	bus  ports.Bus
	poll time.Duration
}

func New(cfg Config, src Snapshotter, bus ports.Bus) *Notifier {
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	return &Notifier{src: src, bus: bus, poll: poll}
}

// Subscribe streams events for session id until a terminal event has been
// delivered or ctx is done. Unsafe ids fail with manager.ErrNotFound; a
// session that does not exist yields a single not_found event.
func (n *Notifier) Subscribe(ctx context.Context, id string) (<-chan Event, error) {
	if !model.IsSafeSessionID(id) {
		return nil, manager.ErrNotFound
	}

	var sub ports.Subscription
	if n.bus != nil {
		s, err := n.bus.Subscribe(ctx, ports.SessionTopic(id))
		if err != nil {
			// Polling still works; the stream is only slower.
			logger := log.WithComponentFromContext(ctx, "notify")
			logger.Warn().Err(err).Str(log.FieldSessionID, id).Msg("bus subscribe failed, polling only")
		} else {
			sub = s
		}
	}

	out := make(chan Event)
	metrics.NotifySubscribers.Inc()
	go n.run(ctx, id, sub, out)
	return out, nil
}

func (n *Notifier) run(ctx context.Context, id string, sub ports.Subscription, out chan<- Event) {
	defer close(out)
	defer metrics.NotifySubscribers.Dec()
	var signals <-chan []byte
	if sub != nil {
		defer func() { _ = sub.Close() }()
		signals = sub.C()
	}

	s := &stream{ctx: ctx, out: out}
	if !s.emit(n.read(ctx, id), "initial") || s.done {
		return
	}

	ticker := time.NewTicker(n.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-signals:
			if !ok {
				signals = nil
				continue
			}
			ev, decoded := decode(payload)
			if !decoded {
				ev = n.read(ctx, id)
			}
			if !s.emit(ev, "signal") || s.done {
				return
			}
		case <-ticker.C:
			if !s.emit(n.read(ctx, id), "poll") || s.done {
				return
			}
		}
	}
}

// read re-reads the registry. Transient read errors yield an empty event,
// which emit ignores.
func (n *Notifier) read(ctx context.Context, id string) Event {
	v, err := n.src.Snapshot(ctx, id)
	switch {
	case err == nil:
		return EventOf(v)
	case errors.Is(err, manager.ErrNotFound):
		return EventOf(manager.NotFoundView(id))
	default:
		if ctx.Err() == nil {
			logger := log.WithComponentFromContext(ctx, "notify")
			logger.Debug().Err(err).Str(log.FieldSessionID, id).Msg("snapshot failed")
		}
		return Event{}
	}
}

func decode(payload []byte) (Event, bool) {
	var v manager.View
	if err := json.Unmarshal(payload, &v); err != nil || v.ID == "" || v.State == "" {
		return Event{}, false
	}
	return EventOf(v), true
}

// stream deduplicates events and stops after the first terminal one.
type stream struct {
	ctx  context.Context
	out  chan<- Event
	last Event
	done bool
}

// emit sends ev unless it equals the previous event or is older than it. It
// returns false if ctx ended before the event could be delivered.
func (s *stream) emit(ev Event, source string) bool {
	if ev.State == "" || ev == s.last || s.stale(ev) {
		return true
	}
	select {
	case s.out <- ev:
	case <-s.ctx.Done():
		return false
	}
	metrics.NotifyEventsTotal.WithLabelValues(source).Inc()
	s.last = ev
	s.done = ev.Terminal()
	return true
}

// stale reports whether ev is a late signal: an earlier state, or less
// progress in the same state.
func (s *stream) stale(ev Event) bool {
	if s.last.State == "" {
		return false
	}
	if r, last := rank(ev.State), rank(s.last.State); r != last {
		return r < last
	}
	return ev.Percent < s.last.Percent
}

func rank(st model.State) int {
	switch st {
	case model.StatePending:
		return 0
	case model.StateAdmitted:
		return 1
	case model.StateInProgress:
		return 2
	default:
		return 3
	}
}
