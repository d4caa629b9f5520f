// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package platform implements ports.Platform on the host operating system.
package platform

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ManuGH/clipgate/internal/domain/session/ports"
)

var _ ports.Platform = (*OSPlatform)(nil)

// OSPlatform implements ports.Platform using standard OS operations.
type OSPlatform struct{}

func NewOSPlatform() *OSPlatform {
	return &OSPlatform{}
}

// Identity returns "<hostname>-<pid>". Lease owners append a per-claim suffix.
func (p *OSPlatform) Identity() (string, error) {
	host, err := os.Hostname()
	if err != nil || strings.TrimSpace(host) == "" {
		host = "unknown"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid()), nil
}

// RemoveAll refuses relative paths and the filesystem root.
func (p *OSPlatform) RemoveAll(path string) error {
	if !filepath.IsAbs(path) {
		return fmt.Errorf("refusing to remove non-absolute path: %s", path)
	}
	clean := filepath.Clean(path)
	if clean == filepath.VolumeName(clean)+string(filepath.Separator) {
		return fmt.Errorf("refusing to remove filesystem root: %s", path)
	}
	return os.RemoveAll(clean)
}
