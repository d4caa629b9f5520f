// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package model

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// ETAText formats seconds as mm:ss, or hh:mm:ss from one hour on.
func ETAText(seconds int64) string {
	if seconds <= 0 {
		return "00:00"
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// SpeedText formats a byte rate, e.g. "1.5 MiB/s".
func SpeedText(bps float64) string {
	if bps <= 0 {
		return "0 B/s"
	}
	return humanize.IBytes(uint64(bps)) + "/s"
}

// BytesText formats a byte count, e.g. "12 MiB".
func BytesText(n int64) string {
	if n <= 0 {
		return "0 B"
	}
	return humanize.IBytes(uint64(n))
}
