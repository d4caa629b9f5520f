// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package procgroup starts extractor processes in their own process group so
// cancellation reaps the whole tree (yt-dlp spawns ffmpeg).
package procgroup

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/ManuGH/clipgate/internal/metrics"
)

// Terminate stops a process group: SIGTERM, wait up to grace, then SIGKILL.
// It consumes and returns the result of waitCh. Safe to call on nil commands.
func Terminate(cmd *exec.Cmd, waitCh <-chan error, grace time.Duration) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	metrics.ProcTerminateTotal.WithLabelValues("SIGTERM", signalResult(Kill(cmd, syscall.SIGTERM))).Inc()

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case err := <-waitCh:
		return err
	case <-timer.C:
		metrics.ProcTerminateTotal.WithLabelValues("SIGKILL", signalResult(Kill(cmd, syscall.SIGKILL))).Inc()
		// Always drain so the Wait goroutine exits.
		return <-waitCh
	}
}

func signalResult(err error) string {
	switch {
	case err == nil:
		return "sent"
	case errors.Is(err, os.ErrProcessDone), errors.Is(err, syscall.ESRCH):
		return "esrch"
	default:
		return "error"
	}
}
