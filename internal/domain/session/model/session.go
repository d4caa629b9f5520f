// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package model defines the download session record and its value types.
package model

import "time"

// Session is the registry record for one download attempt.
type Session struct {
	ID         string     `json:"id"`
	SourceURL  string     `json:"sourceUrl"`
	SourceHost string     `json:"sourceHost"`
	Format     string     `json:"format,omitempty"`
	Mode       Mode       `json:"mode"`
	State      State      `json:"state"`
	Reason     ReasonCode `json:"reason,omitempty"`
	Error      string     `json:"error,omitempty"`

	Title        string `json:"title,omitempty"`
	ArtifactPath string `json:"artifactPath,omitempty"`
	ArtifactName string `json:"artifactName,omitempty"`
	MimeType     string `json:"mimeType,omitempty"`
	SizeBytes    int64  `json:"sizeBytes,omitempty"`

	Progress Progress `json:"progress"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// IsExpired reports whether the session TTL has elapsed at now.
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// HasArtifact reports whether an artifact was produced for the session.
func (s *Session) HasArtifact() bool {
	return s.ArtifactPath != ""
}
