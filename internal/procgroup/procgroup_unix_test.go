// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

//go:build linux

package procgroup

import (
	"os/exec"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTerminateKillsGroup(t *testing.T) {
	cmd := exec.Command("sh", "-c", "sleep 30 & sleep 30")
	Set(cmd)
	require.NoError(t, cmd.Start())

	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	require.NoError(t, err)
	require.Equal(t, cmd.Process.Pid, pgid, "child should lead its own group")

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	_ = Terminate(cmd, waitCh, 500*time.Millisecond)

	require.Eventually(t, func() bool {
		return syscall.Kill(-pgid, 0) == syscall.ESRCH
	}, 2*time.Second, 20*time.Millisecond, "process group should be gone")
}

func TestTerminateEscalatesToKill(t *testing.T) {
	cmd := exec.Command("sh", "-c", "trap '' TERM; sleep 30")
	Set(cmd)
	require.NoError(t, cmd.Start())

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	start := time.Now()
	err := Terminate(cmd, waitCh, 100*time.Millisecond)
	require.Error(t, err, "killed process reports a non-zero exit")
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestKillNilAndExited(t *testing.T) {
	require.NoError(t, Kill(nil, syscall.SIGTERM))
	require.NoError(t, Terminate(nil, nil, time.Millisecond))

	cmd := exec.Command("true")
	Set(cmd)
	require.NoError(t, cmd.Run())
	require.NoError(t, Kill(cmd, syscall.SIGTERM))
}
