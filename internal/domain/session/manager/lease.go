// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package manager

import (
	"context"
	"time"

	"github.com/ManuGH/clipgate/internal/domain/session/store"
	"github.com/ManuGH/clipgate/internal/log"
	"github.com/google/uuid"
)

const leaseOpTimeout = 5 * time.Second

// newOwner returns a lease owner unique to one holder in this process.
func (m *Manager) newOwner() string {
	return m.identity + "/" + uuid.NewString()
}

// claim takes the delivery lease of a session. ok is false when someone else
// holds it.
func (m *Manager) claim(ctx context.Context, id, owner string) (bool, error) {
	_, ok, err := m.store.TryAcquireLease(ctx, store.DeliveryLeaseKey(id), owner, m.cfg.LeaseTTL)
	return ok, err
}

func (m *Manager) unclaim(ctx context.Context, id, owner string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), leaseOpTimeout)
	defer cancel()
	if err := m.store.ReleaseLease(ctx, store.DeliveryLeaseKey(id), owner); err != nil {
		log.L().Warn().Err(err).Str(log.FieldSessionID, id).Msg("failed to release delivery lease")
	}
}

// keepClaim renews the delivery lease until stop is called. The returned
// context is cancelled with errLeaseLost if another owner takes the lease.
func (m *Manager) keepClaim(parent context.Context, id, owner string) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(parent)
	done := make(chan struct{})
	key := store.DeliveryLeaseKey(id)
	interval := max(m.cfg.LeaseTTL/3, 10*time.Millisecond)

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rctx, rcancel := context.WithTimeout(context.WithoutCancel(ctx), leaseOpTimeout)
				_, ok, err := m.store.RenewLease(rctx, key, owner, m.cfg.LeaseTTL)
				rcancel()
				if err != nil {
					// Transient store errors are retried on the next tick.
					log.L().Warn().Err(err).Str(log.FieldSessionID, id).Msg("delivery lease renew failed")
					continue
				}
				if !ok {
					log.L().Warn().Str(log.FieldSessionID, id).Msg("delivery lease lost")
					cancel(errLeaseLost)
					return
				}
			}
		}
	}()

	return ctx, func() {
		cancel(nil)
		<-done
	}
}
