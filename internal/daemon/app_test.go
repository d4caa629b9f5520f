// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package daemon

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/ManuGH/clipgate/internal/config"
	"github.com/ManuGH/clipgate/internal/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApp_RunMissingManager(t *testing.T) {
	app := NewApp(log.WithComponent("test"), nil, nil, nil)
	require.ErrorIs(t, app.Run(context.Background()), ErrMissingManager)
}

func TestApp_RunServesUntilCancelled(t *testing.T) {
	cfg := testConfig(t)
	cfg.API.ListenAddr = reserveListenAddr(t)
	rt, _ := buildRuntime(t, cfg)

	mgr, err := NewManager(DefaultServerConfig(cfg.API.ListenAddr, 2*time.Second), rt.Deps())
	require.NoError(t, err)
	rt.RegisterHooks(mgr)

	holder := config.NewConfigHolder(cfg, config.NewLoader("", cfg.Version))
	app := NewApp(log.WithComponent("test"), mgr, holder, rt)
	app.reloadSignal = nil

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	require.NoError(t, waitForListen(cfg.API.ListenAddr, 2*time.Second))
	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get("http://" + cfg.API.ListenAddr + "/readyz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
