// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package ports defines the contracts the session manager depends on.
package ports

import (
	"context"
	"errors"

	"github.com/ManuGH/clipgate/internal/domain/session/model"
)

// ErrExtractor classifies every failure reported by an Extractor. Details stay
// in the wrapped error and are only logged.
var ErrExtractor = errors.New("extractor failed")

// Format is one downloadable rendition advertised by the source.
type Format struct {
	ID         string  `json:"formatId"`
	Ext        string  `json:"ext,omitempty"`
	Resolution string  `json:"resolution,omitempty"`
	Note       string  `json:"note,omitempty"`
	FPS        float64 `json:"fps,omitempty"`
	Filesize   int64   `json:"filesize,omitempty"`
	HasVideo   bool    `json:"hasVideo"`
	HasAudio   bool    `json:"hasAudio"`
}

// Metadata describes a source link.
type Metadata struct {
	Title             string   `json:"title"`
	Uploader          string   `json:"uploader,omitempty"`
	DurationSeconds   float64  `json:"durationSeconds,omitempty"`
	ThumbnailURL      string   `json:"thumbnailUrl,omitempty"`
	Extension         string   `json:"ext,omitempty"`
	Formats           []Format `json:"formats,omitempty"`
	SubtitleLanguages []string `json:"subtitleLanguages,omitempty"`
}

// FetchRequest asks the extractor to download a link into OutputDir.
type FetchRequest struct {
	URL       string
	Format    string
	OutputDir string
	// MaxBytes aborts downloads larger than this; 0 disables the check.
	MaxBytes int64
}

// Artifact is the file produced by FetchArtifact.
type Artifact struct {
	Path     string
	Size     int64
	MimeType string
	Metadata Metadata
}

// ProgressFunc receives raw progress values as reported upstream.
type ProgressFunc func(model.ProgressUpdate)

// Extractor resolves links and downloads media. Cancelling ctx must stop the
// underlying work.
type Extractor interface {
	FetchMetadata(ctx context.Context, url string) (Metadata, error)
	FetchArtifact(ctx context.Context, req FetchRequest, onProgress ProgressFunc) (Artifact, error)
}
