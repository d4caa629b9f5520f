// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package model

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// Progress is the normalized transfer progress of a session.
// All fields are finite and non-negative.
type Progress struct {
	Percent    float64 `json:"percent"`
	SpeedBps   float64 `json:"speedBps"`
	ETASeconds int64   `json:"etaSeconds"`
	BytesDone  int64   `json:"bytesDone"`
	BytesTotal int64   `json:"bytesTotal"`
}

// ProgressUpdate is a raw progress report. Fields may be numbers, numeric
// strings or strings with unit suffixes ("42.1%", "1.5MiB/s", "00:13").
// Nil fields are left unchanged.
type ProgressUpdate struct {
	Percent    any
	Speed      any
	ETA        any
	BytesDone  any
	BytesTotal any
}

// Apply merges u into p. Unparseable values keep the last good value.
// Percent never decreases and is capped at 100.
func (p Progress) Apply(u ProgressUpdate) Progress {
	out := p
	if v, ok := ParsePercent(u.Percent); ok && v > out.Percent {
		out.Percent = v
	}
	if v, ok := ParseRate(u.Speed); ok {
		out.SpeedBps = v
	}
	if v, ok := ParseETA(u.ETA); ok {
		out.ETASeconds = v
	}
	if v, ok := ParseBytes(u.BytesTotal); ok {
		out.BytesTotal = v
	}
	if v, ok := ParseBytes(u.BytesDone); ok && v >= out.BytesDone {
		out.BytesDone = v
	}
	// Derive percent from byte counts when the tool only reports bytes.
	if u.Percent == nil && out.BytesTotal > 0 {
		if derived := clampPercent(float64(out.BytesDone) * 100 / float64(out.BytesTotal)); derived > out.Percent {
			out.Percent = derived
		}
	}
	return out
}

// Complete returns p marked as fully transferred.
func (p Progress) Complete() Progress {
	p.Percent = 100
	p.ETASeconds = 0
	p.SpeedBps = 0
	if p.BytesTotal > 0 {
		p.BytesDone = p.BytesTotal
	}
	return p
}

func clampPercent(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// numericValue extracts a float from numbers or from the numeric prefix of
// a string, returning the remaining (unit) suffix.
func numericValue(v any) (float64, string, bool) {
	switch x := v.(type) {
	case nil:
		return 0, "", false
	case float64:
		return x, "", finite(x)
	case float32:
		return float64(x), "", finite(float64(x))
	case int:
		return float64(x), "", true
	case int64:
		return float64(x), "", true
	case json.Number:
		f, err := x.Float64()
		return f, "", err == nil && finite(f)
	case string:
		return parseNumericPrefix(x)
	default:
		return 0, "", false
	}
}

func parseNumericPrefix(s string) (float64, string, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "~")
	end := 0
	for end < len(s) {
		c := s[end]
		if (c >= '0' && c <= '9') || c == '.' || (end == 0 && (c == '-' || c == '+')) {
			end++
			continue
		}
		break
	}
	if end == 0 {
		return 0, "", false
	}
	f, err := strconv.ParseFloat(s[:end], 64)
	if err != nil || !finite(f) {
		return 0, "", false
	}
	return f, strings.TrimSpace(s[end:]), true
}

// ParsePercent normalizes a percentage ("42.1%", 42.1) into [0, 100].
func ParsePercent(v any) (float64, bool) {
	f, _, ok := numericValue(v)
	if !ok {
		return 0, false
	}
	return clampPercent(f), true
}

var byteUnits = map[string]float64{
	"":    1,
	"b":   1,
	"k":   1e3,
	"kb":  1e3,
	"kib": 1 << 10,
	"m":   1e6,
	"mb":  1e6,
	"mib": 1 << 20,
	"g":   1e9,
	"gb":  1e9,
	"gib": 1 << 30,
	"t":   1e12,
	"tb":  1e12,
	"tib": 1 << 40,
}

// float64(math.MaxInt64) rounds up to 2^63, which does not fit an int64.
const maxByteCount = 1 << 63

// maxETASeconds is the largest remaining time accepted, exactly representable
// as a float64.
const maxETASeconds = 1 << 53

func scaleBytes(v any, stripSuffix string) (float64, bool) {
	f, unit, ok := numericValue(v)
	if !ok || f < 0 {
		return 0, false
	}
	unit = strings.ToLower(strings.TrimSuffix(strings.ToLower(unit), stripSuffix))
	unit = strings.TrimSpace(unit)
	mult, known := byteUnits[unit]
	if !known {
		return 0, false
	}
	out := f * mult
	if !finite(out) || out >= maxByteCount {
		return 0, false
	}
	return out, true
}

// ParseBytes normalizes a byte count ("12.3KiB", "1.2 MB", 4096).
func ParseBytes(v any) (int64, bool) {
	f, ok := scaleBytes(v, "")
	if !ok {
		return 0, false
	}
	return int64(f), true
}

// ParseRate normalizes a transfer rate in bytes per second ("1.5MiB/s", 2048).
func ParseRate(v any) (float64, bool) {
	return scaleBytes(v, "/s")
}

// ParseETA normalizes a remaining-time value in seconds ("01:02:03", "00:13",
// "42s", 42). Unknown markers such as "N/A" are rejected.
func ParseETA(v any) (int64, bool) {
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		if strings.Contains(s, ":") {
			return parseClock(s)
		}
		v = strings.TrimSuffix(s, "s")
	}
	f, unit, ok := numericValue(v)
	if !ok || unit != "" || f < 0 || f >= maxETASeconds {
		return 0, false
	}
	return int64(math.Round(f)), true
}

func parseClock(s string) (int64, bool) {
	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, false
	}
	var total int64
	for _, p := range parts {
		if p == "" || strings.IndexFunc(p, func(r rune) bool { return !unicode.IsDigit(r) }) >= 0 {
			return 0, false
		}
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return 0, false
		}
		if total > (maxETASeconds-n)/60 {
			return 0, false
		}
		total = total*60 + n
	}
	return total, true
}
