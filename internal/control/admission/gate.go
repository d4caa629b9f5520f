// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package admission bounds concurrent heavy operations (extraction and
// artifact delivery) with a FIFO counting gate.
package admission

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ManuGH/clipgate/internal/metrics"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrBusy is returned when the wait queue is full. Callers should retry later.
	ErrBusy = errors.New("admission: wait queue full")
	// ErrWaitTimeout is returned when the configured wait timeout elapses.
	ErrWaitTimeout = errors.New("admission: wait timed out")
)

// Config configures a Gate.
type Config struct {
	// Capacity is the number of concurrent permits. Values below 1 are treated as 1.
	Capacity int
	// QueueLimit bounds the number of waiters. 0 means unbounded.
	QueueLimit int
	// WaitTimeout bounds a single wait. 0 means wait until the context is done.
	WaitTimeout time.Duration
}

// Stats is a point-in-time view of the gate.
type Stats struct {
	Capacity int `json:"capacity"`
	InUse    int `json:"inUse"`
	Waiting  int `json:"waiting"`
}

// Gate grants permits in request order. A released permit is handed to the
// oldest waiter before any later caller can take it.
type Gate struct {
	sem         *semaphore.Weighted
	capacity    int64
	queueLimit  int64
	waitTimeout time.Duration

	inUse   atomic.Int64
	waiting atomic.Int64

	// OnWait, if set, is called when a caller starts waiting. Test hook.
	OnWait func()
}

// NewGate creates a gate.
func NewGate(cfg Config) *Gate {
	capacity := int64(cfg.Capacity)
	if capacity < 1 {
		capacity = 1
	}
	return &Gate{
		sem:         semaphore.NewWeighted(capacity),
		capacity:    capacity,
		queueLimit:  int64(max(cfg.QueueLimit, 0)),
		waitTimeout: cfg.WaitTimeout,
	}
}

// Acquire blocks until a permit is granted, ctx is done, the wait timeout
// elapses or the queue is full. The returned permit must be released exactly once.
func (g *Gate) Acquire(ctx context.Context) (*Permit, error) {
	// TryAcquire fails while anyone is queued, so it never overtakes a waiter.
	if g.sem.TryAcquire(1) {
		return g.grant(0), nil
	}

	if n := g.waiting.Add(1); g.queueLimit > 0 && n > g.queueLimit {
		g.waiting.Add(-1)
		metrics.GateRejectTotal.WithLabelValues("busy").Inc()
		return nil, ErrBusy
	}
	metrics.GateWaiting.Inc()
	if g.OnWait != nil {
		g.OnWait()
	}

	waitCtx := ctx
	if g.waitTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, g.waitTimeout)
		defer cancel()
	}

	start := time.Now()
	err := g.sem.Acquire(waitCtx, 1)
	g.waiting.Add(-1)
	metrics.GateWaiting.Dec()

	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			metrics.GateRejectTotal.WithLabelValues("timeout").Inc()
			return nil, ErrWaitTimeout
		}
		metrics.GateRejectTotal.WithLabelValues("cancelled").Inc()
		return nil, err
	}
	return g.grant(time.Since(start)), nil
}

func (g *Gate) grant(waited time.Duration) *Permit {
	g.inUse.Add(1)
	metrics.GateInUse.Inc()
	metrics.GateWaitSeconds.Observe(waited.Seconds())
	return &Permit{gate: g, acquiredAt: time.Now(), waited: waited}
}

// Capacity returns the number of permits.
func (g *Gate) Capacity() int { return int(g.capacity) }

// InUse returns the number of permits currently held.
func (g *Gate) InUse() int { return int(g.inUse.Load()) }

// Waiting returns the number of callers queued for a permit.
func (g *Gate) Waiting() int { return int(g.waiting.Load()) }

// Stats returns a snapshot of the gate counters.
func (g *Gate) Stats() Stats {
	return Stats{Capacity: g.Capacity(), InUse: g.InUse(), Waiting: g.Waiting()}
}

// Permit is a granted slot. Release is idempotent.
type Permit struct {
	gate       *Gate
	once       sync.Once
	acquiredAt time.Time
	waited     time.Duration
}

// Release returns the slot to the gate. Only the first call has an effect.
func (p *Permit) Release() {
	if p == nil {
		return
	}
	p.once.Do(func() {
		p.gate.inUse.Add(-1)
		metrics.GateInUse.Dec()
		p.gate.sem.Release(1)
	})
}

// Waited reports how long the caller queued before the permit was granted.
func (p *Permit) Waited() time.Duration { return p.waited }

// Held reports how long the permit has been held.
func (p *Permit) Held() time.Duration { return time.Since(p.acquiredAt) }
