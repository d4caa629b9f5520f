// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package fsutil

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"My Clip.mp4", "My Clip.mp4"},
		{"../../etc/passwd", "_._etc_passwd"},
		{"a/b\\c:d*e?f\"g<h>i|j", "a_b_c_d_e_f_g_h_i_j"},
		{"line\nbreak\x00nul", "line breaknul"},
		{"  ...hidden...  ", "hidden"},
		{"", "video"},
		{"\x01\x02", "video"},
		{"...", "video"},
		{"tab\tseparated   spaces", "tab separated spaces"},
		{"clip\u202Egpj.exe", "clipgpj.exe"},
		{"zero\u200Bwidth\uFEFF.mp4", "zerowidth.mp4"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeFilename(tt.in), "input %q", tt.in)
	}
}

func TestSanitizeFilenameNFC(t *testing.T) {
	decomposed := "Cafe\u0301"
	assert.Equal(t, "Café", SanitizeFilename(decomposed))
}

func TestSanitizeFilenameCapsLengthKeepingExtension(t *testing.T) {
	long := strings.Repeat("é", 200) + ".mp4"
	got := SanitizeFilename(long)
	assert.LessOrEqual(t, len(got), MaxFilenameBytes)
	assert.True(t, strings.HasSuffix(got, ".mp4"))
	assert.True(t, utf8.ValidString(got))
}

func TestWithExtension(t *testing.T) {
	assert.Equal(t, "Dance.mp4", WithExtension("Dance", "mp4"))
	assert.Equal(t, "Dance.mp4", WithExtension("Dance.mp4", ".MP4"))
	assert.Equal(t, "video.webm", WithExtension("", "webm"))
	assert.Equal(t, "Dance", WithExtension("Dance", "../sh"))

	got := WithExtension(strings.Repeat("x", 400), "mp4")
	assert.Len(t, got, MaxFilenameBytes)
	assert.True(t, strings.HasSuffix(got, ".mp4"))
}
