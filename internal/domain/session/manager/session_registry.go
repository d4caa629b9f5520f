// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package manager

import (
	"context"
	"fmt"
	"sync"
)

// workerRegistry tracks background extraction goroutines and provides a
// bounded join on shutdown.
type workerRegistry struct {
	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup
	cancels map[string]context.CancelCauseFunc
}

func newWorkerRegistry() *workerRegistry {
	return &workerRegistry{cancels: make(map[string]context.CancelCauseFunc)}
}

// Go starts fn under id unless the registry is closing. The cancel function
// is kept so Cancel and Shutdown can stop the job with a cause.
func (r *workerRegistry) Go(id string, cancel context.CancelCauseFunc, fn func()) bool {
	r.mu.Lock()
	if r.closing {
		r.mu.Unlock()
		return false
	}
	r.cancels[id] = cancel
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		defer r.forget(id)
		fn()
	}()

	return true
}

// Track registers a job that runs on the caller's goroutine. The returned
// function must be called when the job ends.
func (r *workerRegistry) Track(id string, cancel context.CancelCauseFunc) (func(), bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closing {
		return nil, false
	}
	r.cancels[id] = cancel
	return func() { r.forget(id) }, true
}

func (r *workerRegistry) forget(id string) {
	r.mu.Lock()
	delete(r.cancels, id)
	r.mu.Unlock()
}

// Cancel stops the job for id with cause. It reports whether a job was found.
func (r *workerRegistry) Cancel(id string, cause error) bool {
	r.mu.Lock()
	cancel, ok := r.cancels[id]
	r.mu.Unlock()
	if ok {
		cancel(cause)
	}
	return ok
}

// Running reports whether a job for id is tracked.
func (r *workerRegistry) Running(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.cancels[id]
	return ok
}

// Closing reports whether CloseAndWait has been called.
func (r *workerRegistry) Closing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closing
}

// CloseAndWait refuses new jobs, cancels the running ones with cause and
// waits for background workers until ctx is done.
func (r *workerRegistry) CloseAndWait(ctx context.Context, cause error) error {
	r.mu.Lock()
	r.closing = true
	cancels := make([]context.CancelCauseFunc, 0, len(r.cancels))
	for _, c := range r.cancels {
		cancels = append(cancels, c)
	}
	r.mu.Unlock()

	for _, c := range cancels {
		c(cause)
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("session worker drain timeout: %w", ctx.Err())
	}
}
