// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package fsutil

import (
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const (
	// MaxFilenameBytes caps sanitized names below common filesystem limits.
	MaxFilenameBytes = 180
	// FallbackFilename is used when nothing printable survives.
	FallbackFilename = "video"

	maxExtBytes = 16
)

// SanitizeFilename turns an untrusted title into a safe attachment filename.
// The result is NFC normalized and contains no control or format characters, path
// separators or characters reserved on common filesystems.
func SanitizeFilename(name string) string {
	name = norm.NFC.String(name)

	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r == utf8.RuneError, r == 0:
			continue
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		case unicode.IsControl(r), unicode.Is(unicode.Cf, r):
			continue
		case strings.ContainsRune(`/\:*?"<>|`, r):
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	out := strings.Join(strings.Fields(b.String()), " ")
	for strings.Contains(out, "..") {
		out = strings.ReplaceAll(out, "..", ".")
	}
	out = strings.Trim(out, ". ")
	if out == "" {
		return FallbackFilename
	}
	return truncatePreservingExt(out, MaxFilenameBytes)
}

// WithExtension appends ext (from the artifact) to a sanitized base name,
// keeping the total within MaxFilenameBytes.
func WithExtension(base, ext string) string {
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	if ext == "" || len(ext) > maxExtBytes || strings.ContainsAny(ext, `/\. `) {
		return SanitizeFilename(base)
	}
	stem := SanitizeFilename(base)
	if strings.EqualFold(filepath.Ext(stem), "."+ext) {
		return stem
	}
	stem = truncateUTF8(stem, MaxFilenameBytes-len(ext)-1)
	stem = strings.TrimRight(stem, ". ")
	if stem == "" {
		stem = FallbackFilename
	}
	return stem + "." + ext
}

func truncatePreservingExt(name string, limit int) string {
	if len(name) <= limit {
		return name
	}
	ext := filepath.Ext(name)
	if ext == "" || len(ext) > maxExtBytes {
		return strings.TrimRight(truncateUTF8(name, limit), ". ")
	}
	stem := strings.TrimRight(truncateUTF8(strings.TrimSuffix(name, ext), limit-len(ext)), ". ")
	if stem == "" {
		stem = FallbackFilename
	}
	return stem + ext
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
