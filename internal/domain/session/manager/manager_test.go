// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package manager

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/clipgate/internal/cache"
	"github.com/ManuGH/clipgate/internal/domain/session/model"
	"github.com/ManuGH/clipgate/internal/domain/session/ports"
	"github.com/ManuGH/clipgate/internal/domain/session/store"
	"github.com/ManuGH/clipgate/internal/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestRequestDownloadCreatesPendingSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	ticket, err := h.m.RequestDownload(ctx, Request{URL: testURL})
	require.NoError(t, err)

	assert.Equal(t, model.StatePending, ticket.State)
	assert.Equal(t, model.ModeFetch, ticket.Mode)
	assert.True(t, model.IsSafeSessionID(ticket.ID))
	assert.Equal(t, int32(1), h.ext.artifactCalls.Load())
	assert.Equal(t, testURL, h.ext.LastURL())
	assert.True(t, ticket.ExpiresAt.Equal(h.clock.Now().Add(DefaultConfig().TTL)))
	assert.Equal(t, "My Clip", ticket.Metadata.Title)

	rec := h.record(t, ticket.ID)
	require.NotNil(t, rec)
	assert.Equal(t, model.StatePending, rec.State)
	assert.Equal(t, "tiktok.com", rec.SourceHost)
	assert.Equal(t, "My Clip.mp4", rec.ArtifactName)
	assert.FileExists(t, rec.ArtifactPath)
	assert.Zero(t, h.gate.InUse())
}

func TestRequestDownloadRejectsBeforeExtraction(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{name: "not a url", req: Request{URL: "not a url"}},
		{name: "empty", req: Request{URL: ""}},
		{name: "ftp scheme", req: Request{URL: "ftp://tiktok.com/v"}},
		{name: "host not allowed", req: Request{URL: "https://example.com/video/1"}},
		{name: "lookalike host", req: Request{URL: "https://tiktok.com.evil.example/v"}},
		{name: "credentials", req: Request{URL: "https://user:pw@tiktok.com/v"}},
		{name: "option injection", req: Request{URL: testURL, Format: "--exec=rm"}},
		{name: "format charset", req: Request{URL: testURL, Format: "best; rm -rf /"}},
		{name: "unknown mode", req: Request{URL: testURL, Mode: "later"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			_, err := h.m.RequestDownload(context.Background(), tt.req)
			require.ErrorIs(t, err, ErrValidation)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.NotEmpty(t, verr.Msg)

			assert.Zero(t, h.ext.metaCalls.Load())
			assert.Zero(t, h.ext.artifactCalls.Load())
			assert.Zero(t, h.sessionCount(t))
			dirs, err := h.root.ListSessionDirs()
			require.NoError(t, err)
			assert.Empty(t, dirs)
		})
	}
}

func TestRequestDownloadAcceptsSubdomains(t *testing.T) {
	h := newHarness(t)
	ticket, err := h.m.RequestDownload(context.Background(), Request{URL: "https://www.instagram.com/reel/abc/"})
	require.NoError(t, err)
	assert.Equal(t, "instagram.com", h.record(t, ticket.ID).SourceHost)
}

func TestRequestDownloadUpstreamFailureIsGeneric(t *testing.T) {
	h := newHarness(t)
	h.ext.fail = errors.New("ERROR: [tiktok] 123: secret upstream detail")

	_, err := h.m.RequestDownload(context.Background(), Request{URL: testURL})
	require.ErrorIs(t, err, ErrUpstream)
	assert.NotContains(t, err.Error(), "secret")
	assert.Zero(t, h.sessionCount(t))
	dirs, err := h.root.ListSessionDirs()
	require.NoError(t, err)
	assert.Empty(t, dirs)
	assert.Zero(t, h.gate.InUse())
}

func TestResolveAndStreamDeliversAndCleansUp(t *testing.T) {
	for _, mode := range []string{token.ModeSigned, token.ModeSealed} {
		t.Run(mode, func(t *testing.T) {
			h := newHarness(t, withIssuerMode(mode))
			ctx := context.Background()

			ticket, err := h.m.RequestDownload(ctx, Request{URL: testURL})
			require.NoError(t, err)
			dir := h.sessionDir(t, ticket.ID)

			sink := &bufferSink{}
			require.NoError(t, h.m.ResolveAndStream(ctx, redemption(ticket.Grant), sink))

			assert.Equal(t, h.ext.content, sink.Bytes())
			info := sink.Info()
			assert.Equal(t, "My Clip.mp4", info.FileName)
			assert.Equal(t, "video/mp4", info.MimeType)
			assert.Equal(t, int64(len(h.ext.content)), info.Size)

			assert.Nil(t, h.record(t, ticket.ID))
			assert.NoDirExists(t, dir)
			assert.Zero(t, h.gate.InUse())

			// A delivered link is spent.
			err = h.m.ResolveAndStream(ctx, redemption(ticket.Grant), &bufferSink{})
			require.ErrorIs(t, err, ErrInvalidOrExpired)
		})
	}
}

func TestResolveAndStreamRejectsTamperedLinks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket, err := h.m.RequestDownload(ctx, Request{URL: testURL})
	require.NoError(t, err)

	q := ticket.Grant.Query()
	sig := []byte(q.Get("signature"))
	sig[0] ^= 0x01
	q.Set("signature", string(sig))
	err = h.m.ResolveAndStream(ctx, token.RedemptionFromQuery(q), &bufferSink{})
	require.ErrorIs(t, err, ErrInvalidOrExpired)

	q = ticket.Grant.Query()
	q.Set("expires", "1")
	err = h.m.ResolveAndStream(ctx, token.RedemptionFromQuery(q), &bufferSink{})
	require.ErrorIs(t, err, ErrInvalidOrExpired)

	// The genuine link still works afterwards.
	require.NoError(t, h.m.ResolveAndStream(ctx, redemption(ticket.Grant), &bufferSink{}))
}

func TestResolveAndStreamWaitsForGate(t *testing.T) {
	h := newHarness(t, withGateCapacity(1))
	ctx := context.Background()

	first, err := h.m.RequestDownload(ctx, Request{URL: testURL})
	require.NoError(t, err)
	second, err := h.m.RequestDownload(ctx, Request{URL: "https://tiktok.com/@a/video/2"})
	require.NoError(t, err)

	blocking := newBlockingSink()
	var wg sync.WaitGroup
	wg.Add(2)
	var firstErr, secondErr error
	go func() {
		defer wg.Done()
		firstErr = h.m.ResolveAndStream(ctx, redemption(first.Grant), blocking)
	}()
	<-blocking.writing
	require.Equal(t, 1, h.gate.InUse())

	waiting := make(chan struct{})
	h.gate.OnWait = func() { close(waiting) }
	sink := &bufferSink{}
	go func() {
		defer wg.Done()
		secondErr = h.m.ResolveAndStream(ctx, redemption(second.Grant), sink)
	}()

	select {
	case <-waiting:
	case <-time.After(5 * time.Second):
		t.Fatal("second delivery never queued on the gate")
	}
	assert.Equal(t, 1, h.gate.Waiting())
	assert.False(t, sink.prepared.Load(), "second delivery started before the slot was released")
	rec := h.record(t, second.ID)
	assert.Equal(t, model.StatePending, rec.State)

	close(blocking.release)
	wg.Wait()

	require.NoError(t, firstErr)
	require.NoError(t, secondErr)
	assert.Equal(t, int64(len(h.ext.content)), blocking.n.Load())
	assert.Equal(t, h.ext.content, sink.Bytes())
	assert.Zero(t, h.gate.InUse())
}

func TestResolveAndStreamRejectsExpiredSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket, err := h.m.RequestDownload(ctx, Request{URL: testURL})
	require.NoError(t, err)
	rec := h.record(t, ticket.ID)

	h.clock.Advance(DefaultConfig().TTL + time.Second)

	errExpiredLink := h.m.ResolveAndStream(ctx, redemption(ticket.Grant), &bufferSink{})
	require.ErrorIs(t, errExpiredLink, ErrInvalidOrExpired)
	assert.FileExists(t, rec.ArtifactPath)

	// Same failure class as a link for a session that never existed.
	otherID, err := model.NewSessionID()
	require.NoError(t, err)
	ghost, err := h.issuer.Issue(token.Claims{SessionID: otherID, ExpiresAt: h.clock.Now().Add(time.Minute)})
	require.NoError(t, err)
	errUnknown := h.m.ResolveAndStream(ctx, redemption(ghost), &bufferSink{})
	assert.Equal(t, errExpiredLink, errUnknown)

	view, err := h.m.Snapshot(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateExpired, view.State)

	st := NewSweeper(h.m, time.Minute).SweepOnce(ctx)
	assert.Equal(t, 1, st.Expired)
	assert.NoFileExists(t, rec.ArtifactPath)
	assert.NoDirExists(t, h.sessionDir(t, ticket.ID))
	assert.Nil(t, h.record(t, ticket.ID))
}

func TestResolveAndStreamAbortCleansUp(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket, err := h.m.RequestDownload(ctx, Request{URL: testURL})
	require.NoError(t, err)
	dir := h.sessionDir(t, ticket.ID)
	before := h.gate.InUse()

	err = h.m.ResolveAndStream(ctx, redemption(ticket.Grant), &failingSink{failAfter: 1})
	require.ErrorIs(t, err, errClientGone)
	assert.NotErrorIs(t, err, ErrInvalidOrExpired)

	assert.Equal(t, before, h.gate.InUse())
	rec := h.record(t, ticket.ID)
	require.NotNil(t, rec)
	assert.Equal(t, model.StateCancelled, rec.State)
	assert.Equal(t, model.RStreamAborted, rec.Reason)
	assert.NoDirExists(t, dir)

	err = h.m.ResolveAndStream(ctx, redemption(ticket.Grant), &bufferSink{})
	require.ErrorIs(t, err, ErrInvalidOrExpired)
}

func TestResolveAndStreamContextCancelled(t *testing.T) {
	h := newHarness(t)
	ticket, err := h.m.RequestDownload(context.Background(), Request{URL: testURL})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	sink := newBlockingSink()
	done := make(chan error, 1)
	go func() { done <- h.m.ResolveAndStream(ctx, redemption(ticket.Grant), sink) }()
	<-sink.writing
	cancel()
	close(sink.release)

	require.ErrorIs(t, <-done, context.Canceled)
	assert.Zero(t, h.gate.InUse())
	assert.Equal(t, model.StateCancelled, h.record(t, ticket.ID).State)
	assert.NoDirExists(t, h.sessionDir(t, ticket.ID))
}

func TestResolveAndStreamMissingArtifact(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket, err := h.m.RequestDownload(ctx, Request{URL: testURL})
	require.NoError(t, err)
	require.NoError(t, os.Remove(h.record(t, ticket.ID).ArtifactPath))

	err = h.m.ResolveAndStream(ctx, redemption(ticket.Grant), &bufferSink{})
	require.ErrorIs(t, err, ErrInvalidOrExpired)
	rec := h.record(t, ticket.ID)
	require.NotNil(t, rec)
	assert.Equal(t, model.StateFailed, rec.State)
	assert.Equal(t, model.RArtifactMissing, rec.Reason)
	assert.Zero(t, h.gate.InUse())
}

func TestQueuedSessionLifecycle(t *testing.T) {
	h := newHarness(t, withDefaultMode(model.ModeQueued))
	h.ext.hold = make(chan struct{})
	ctx := context.Background()

	ticket, err := h.m.RequestDownload(ctx, Request{URL: testURL})
	require.NoError(t, err)
	assert.Equal(t, model.ModeQueued, ticket.Mode)
	assert.Equal(t, "My Clip", ticket.Metadata.Title)
	<-h.ext.started

	err = h.m.ResolveAndStream(ctx, redemption(ticket.Grant), &bufferSink{})
	require.ErrorIs(t, err, ErrNotReady)

	view, err := h.m.Snapshot(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateInProgress, view.State)

	close(h.ext.hold)
	require.Eventually(t, func() bool {
		v, err := h.m.Snapshot(ctx, ticket.ID)
		return err == nil && v.State == model.StateCompleted
	}, 5*time.Second, 5*time.Millisecond)

	view, err = h.m.Snapshot(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, 100.0, view.Progress.Percent)
	assert.Equal(t, "My Clip.mp4", view.FileName)
	assert.Zero(t, h.gate.InUse())

	sink := &bufferSink{}
	require.NoError(t, h.m.ResolveAndStream(ctx, redemption(ticket.Grant), sink))
	assert.Equal(t, h.ext.content, sink.Bytes())
	assert.Nil(t, h.record(t, ticket.ID))
	assert.NoDirExists(t, h.sessionDir(t, ticket.ID))
}

func TestQueuedAbortedDeliveryCanRetry(t *testing.T) {
	h := newHarness(t, withDefaultMode(model.ModeQueued))
	ctx := context.Background()

	ticket, err := h.m.RequestDownload(ctx, Request{URL: testURL})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		rec := h.record(t, ticket.ID)
		return rec != nil && rec.State == model.StateCompleted
	}, 5*time.Second, 5*time.Millisecond)

	err = h.m.ResolveAndStream(ctx, redemption(ticket.Grant), &failingSink{failAfter: 1})
	require.ErrorIs(t, err, errClientGone)
	rec := h.record(t, ticket.ID)
	require.NotNil(t, rec)
	assert.Equal(t, model.StateCompleted, rec.State)
	assert.FileExists(t, rec.ArtifactPath)

	sink := &bufferSink{}
	require.NoError(t, h.m.ResolveAndStream(ctx, redemption(ticket.Grant), sink))
	assert.Equal(t, h.ext.content, sink.Bytes())
}

func TestQueuedUpstreamFailure(t *testing.T) {
	h := newHarness(t, withDefaultMode(model.ModeQueued))
	h.ext.hold = make(chan struct{})
	ctx := context.Background()

	ticket, err := h.m.RequestDownload(ctx, Request{URL: testURL})
	require.NoError(t, err)
	<-h.ext.started
	h.ext.fail = errors.New("boom")
	close(h.ext.hold)

	require.Eventually(t, func() bool {
		rec := h.record(t, ticket.ID)
		return rec != nil && rec.State == model.StateFailed
	}, 5*time.Second, 5*time.Millisecond)
	rec := h.record(t, ticket.ID)
	assert.Equal(t, model.RUpstreamFailed, rec.Reason)
	assert.Equal(t, "could not process this link", rec.Error)
	assert.NoDirExists(t, h.sessionDir(t, ticket.ID))
}

func TestCancelQueuedJob(t *testing.T) {
	h := newHarness(t, withDefaultMode(model.ModeQueued))
	h.ext.hold = make(chan struct{})
	ctx := context.Background()

	ticket, err := h.m.RequestDownload(ctx, Request{URL: testURL})
	require.NoError(t, err)
	<-h.ext.started

	require.NoError(t, h.m.Cancel(ctx, ticket.ID))
	require.Eventually(t, func() bool {
		rec := h.record(t, ticket.ID)
		return rec != nil && rec.State == model.StateCancelled
	}, 5*time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, h.ext.CtxErr(), context.Canceled)
	assert.Equal(t, model.RClientCancelled, h.record(t, ticket.ID).Reason)
	assert.NoDirExists(t, h.sessionDir(t, ticket.ID))
	assert.Zero(t, h.gate.InUse())
}

func TestCancelReadySession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket, err := h.m.RequestDownload(ctx, Request{URL: testURL})
	require.NoError(t, err)

	require.NoError(t, h.m.Cancel(ctx, ticket.ID))
	assert.Equal(t, model.StateCancelled, h.record(t, ticket.ID).State)
	assert.NoDirExists(t, h.sessionDir(t, ticket.ID))

	err = h.m.ResolveAndStream(ctx, redemption(ticket.Grant), &bufferSink{})
	require.ErrorIs(t, err, ErrInvalidOrExpired)

	// Cancelling a finished session discards it.
	require.NoError(t, h.m.Cancel(ctx, ticket.ID))
	assert.Nil(t, h.record(t, ticket.ID))
}

func TestCancelBusySession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket, err := h.m.RequestDownload(ctx, Request{URL: testURL})
	require.NoError(t, err)

	_, ok, err := h.store.TryAcquireLease(ctx, store.DeliveryLeaseKey(ticket.ID), "someone-else", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.ErrorIs(t, h.m.Cancel(ctx, ticket.ID), ErrDelivering)
	assert.Equal(t, model.StatePending, h.record(t, ticket.ID).State)
}

func TestCancelAndSnapshotUnknown(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id, err := model.NewSessionID()
	require.NoError(t, err)

	require.ErrorIs(t, h.m.Cancel(ctx, id), ErrNotFound)
	require.ErrorIs(t, h.m.Cancel(ctx, "../etc"), ErrNotFound)
	_, err = h.m.Snapshot(ctx, id)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = h.m.Snapshot(ctx, "not-an-id")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSnapshotHidesInternals(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket, err := h.m.RequestDownload(ctx, Request{URL: testURL + "?secret=1"})
	require.NoError(t, err)

	view, err := h.m.Snapshot(ctx, ticket.ID)
	require.NoError(t, err)
	raw, err := json.Marshal(view)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "artifact.mp4")
	assert.NotContains(t, string(raw), "secret")
	assert.Equal(t, "00:00", view.ETA)
	assert.Equal(t, "0 B/s", view.Speed)
}

func TestInspectUsesCache(t *testing.T) {
	mc := cache.NewMemoryCache(time.Minute)
	defer mc.Close()
	h := newHarness(t, withCache(cache.NewMetadataCache(mc)))
	ctx := context.Background()

	md, err := h.m.Inspect(ctx, testURL)
	require.NoError(t, err)
	assert.Equal(t, "My Clip", md.Title)
	_, err = h.m.Inspect(ctx, testURL)
	require.NoError(t, err)
	assert.Equal(t, int32(1), h.ext.metaCalls.Load())

	_, err = h.m.Inspect(ctx, "https://example.com/x")
	require.ErrorIs(t, err, ErrValidation)
}

func TestInspectUpstreamFailure(t *testing.T) {
	h := newHarness(t)
	h.ext.fail = errors.New("private")
	_, err := h.m.Inspect(context.Background(), testURL)
	require.ErrorIs(t, err, ErrUpstream)
}

func TestShutdownFailsRunningJobs(t *testing.T) {
	h := newHarness(t, withDefaultMode(model.ModeQueued))
	h.ext.hold = make(chan struct{})
	ctx := context.Background()

	ticket, err := h.m.RequestDownload(ctx, Request{URL: testURL})
	require.NoError(t, err)
	<-h.ext.started

	sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, h.m.Shutdown(sctx))

	rec := h.record(t, ticket.ID)
	require.NotNil(t, rec)
	assert.Equal(t, model.StateFailed, rec.State)
	assert.Equal(t, model.RShutdown, rec.Reason)
	assert.NoDirExists(t, h.sessionDir(t, ticket.ID))

	_, err = h.m.RequestDownload(ctx, Request{URL: testURL})
	require.ErrorIs(t, err, ErrShuttingDown)
}

func TestTransitionsArePublished(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket, err := h.m.RequestDownload(ctx, Request{URL: testURL})
	require.NoError(t, err)

	sub, err := h.bus.Subscribe(ctx, ports.SessionTopic(ticket.ID))
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, h.m.ResolveAndStream(ctx, redemption(ticket.Grant), &bufferSink{}))

	var states []model.State
	for {
		select {
		case payload := <-sub.C():
			var v View
			require.NoError(t, json.Unmarshal(payload, &v))
			states = append(states, v.State)
			continue
		default:
		}
		break
	}
	require.NotEmpty(t, states)
	assert.Equal(t, model.StateAdmitted, states[0])
	assert.Equal(t, model.StateCompleted, states[len(states)-1])
}
