// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package fsutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ManuGH/clipgate/internal/domain/session/model"
)

// SessionsDirName is the directory under the temp root holding one
// sub-directory per session.
const SessionsDirName = "sessions"

// ErrUnsafeSessionID is returned for ids that cannot name a directory.
var ErrUnsafeSessionID = errors.New("unsafe session id")

// ArtifactRoot manages <tempDir>/sessions/<id>/ directories.
type ArtifactRoot struct {
	dir string
}

// NewArtifactRoot creates (if needed) and returns the sessions root under tempDir.
func NewArtifactRoot(tempDir string) (*ArtifactRoot, error) {
	abs, err := filepath.Abs(tempDir)
	if err != nil {
		return nil, fmt.Errorf("resolve temp dir: %w", err)
	}
	dir := filepath.Join(abs, SessionsDirName)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create sessions dir: %w", err)
	}
	return &ArtifactRoot{dir: dir}, nil
}

// Dir returns the sessions root.
func (r *ArtifactRoot) Dir() string { return r.dir }

// SessionDir returns the directory for id without creating it.
func (r *ArtifactRoot) SessionDir(id string) (string, error) {
	if !model.IsSafeSessionID(id) {
		return "", ErrUnsafeSessionID
	}
	return filepath.Join(r.dir, id), nil
}

// CreateSessionDir creates the directory for id. It fails if it already exists.
func (r *ArtifactRoot) CreateSessionDir(id string) (string, error) {
	dir, err := r.SessionDir(id)
	if err != nil {
		return "", err
	}
	if err := os.Mkdir(dir, 0o750); err != nil {
		return "", fmt.Errorf("create session dir: %w", err)
	}
	return dir, nil
}

// RemoveSessionDir deletes the directory for id. A missing directory is not an error.
func (r *ArtifactRoot) RemoveSessionDir(id string) error {
	dir, err := r.SessionDir(id)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove session dir: %w", err)
	}
	return nil
}

// OpenArtifact opens path for reading after checking it is a regular file
// confined to the session directory of id.
func (r *ArtifactRoot) OpenArtifact(id, path string) (*os.File, os.FileInfo, error) {
	dir, err := r.SessionDir(id)
	if err != nil {
		return nil, nil, err
	}
	resolved, err := ConfineAbsPath(dir, path)
	if err != nil {
		return nil, nil, err
	}
	if err := IsRegularFile(resolved); err != nil {
		return nil, nil, err
	}
	f, err := os.Open(resolved) // #nosec G304 -- confined above
	if err != nil {
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	return f, info, nil
}

// SessionDirEntry is one directory found under the sessions root.
type SessionDirEntry struct {
	ID      string
	Path    string
	ModTime time.Time
}

// ListSessionDirs returns the session directories currently on disk. Entries
// whose name is not a session id are skipped.
func (r *ArtifactRoot) ListSessionDirs() ([]SessionDirEntry, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, err
	}
	out := make([]SessionDirEntry, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || !model.IsSafeSessionID(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue // removed concurrently
		}
		out = append(out, SessionDirEntry{
			ID:      e.Name(),
			Path:    filepath.Join(r.dir, e.Name()),
			ModTime: info.ModTime(),
		})
	}
	return out, nil
}
