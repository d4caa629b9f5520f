// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package ytdlp

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/ManuGH/clipgate/internal/domain/session/ports"
)

type ytFormat struct {
	FormatID       string   `json:"format_id"`
	Ext            string   `json:"ext"`
	Resolution     string   `json:"resolution"`
	FormatNote     string   `json:"format_note"`
	FPS            *float64 `json:"fps"`
	Filesize       *int64   `json:"filesize"`
	FilesizeApprox *int64   `json:"filesize_approx"`
	VCodec         string   `json:"vcodec"`
	ACodec         string   `json:"acodec"`
}

type ytInfo struct {
	Title     string                     `json:"title"`
	Uploader  string                     `json:"uploader"`
	Channel   string                     `json:"channel"`
	Duration  *float64                   `json:"duration"`
	Thumbnail string                     `json:"thumbnail"`
	Ext       string                     `json:"ext"`
	Formats   []ytFormat                 `json:"formats"`
	Subtitles map[string]json.RawMessage `json:"subtitles"`
}

func parseInfo(raw []byte) (*ytInfo, error) {
	var info ytInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("decode yt-dlp info: %w", err)
	}
	return &info, nil
}

func hasCodec(c string) bool {
	return c != "" && c != "none"
}

func (i *ytInfo) metadata() ports.Metadata {
	md := ports.Metadata{
		Title:        i.Title,
		Uploader:     i.Uploader,
		ThumbnailURL: i.Thumbnail,
		Extension:    i.Ext,
	}
	if md.Uploader == "" {
		md.Uploader = i.Channel
	}
	if i.Duration != nil && *i.Duration > 0 {
		md.DurationSeconds = *i.Duration
	}
	for _, f := range i.Formats {
		if f.FormatID == "" {
			continue
		}
		out := ports.Format{
			ID:         f.FormatID,
			Ext:        f.Ext,
			Resolution: f.Resolution,
			Note:       f.FormatNote,
			HasVideo:   hasCodec(f.VCodec),
			HasAudio:   hasCodec(f.ACodec),
		}
		if f.FPS != nil {
			out.FPS = *f.FPS
		}
		switch {
		case f.Filesize != nil:
			out.Filesize = *f.Filesize
		case f.FilesizeApprox != nil:
			out.Filesize = *f.FilesizeApprox
		}
		md.Formats = append(md.Formats, out)
	}
	for lang := range i.Subtitles {
		md.SubtitleLanguages = append(md.SubtitleLanguages, lang)
	}
	sort.Strings(md.SubtitleLanguages)
	return md
}
