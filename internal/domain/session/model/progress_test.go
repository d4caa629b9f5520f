// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package model

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestParsePercent(t *testing.T) {
	cases := []struct {
		in   any
		want float64
		ok   bool
	}{
		{42.5, 42.5, true},
		{"42.1%", 42.1, true},
		{" 7 % ", 7, true},
		{json.Number("99.9"), 99.9, true},
		{150, 100, true},
		{-3, 0, true},
		{"N/A", 0, false},
		{math.NaN(), 0, false},
		{math.Inf(1), 0, false},
		{nil, 0, false},
		{true, 0, false},
	}
	for _, tc := range cases {
		got, ok := ParsePercent(tc.in)
		assert.Equal(t, tc.ok, ok, "input %v", tc.in)
		if tc.ok {
			assert.InDelta(t, tc.want, got, 1e-9, "input %v", tc.in)
		}
	}
}

func TestParseBytesAndRate(t *testing.T) {
	b, ok := ParseBytes("12.5KiB")
	assert.True(t, ok)
	assert.Equal(t, int64(12800), b)

	b, ok = ParseBytes("~1.2 MB")
	assert.True(t, ok)
	assert.Equal(t, int64(1_200_000), b)

	b, ok = ParseBytes(4096)
	assert.True(t, ok)
	assert.Equal(t, int64(4096), b)

	_, ok = ParseBytes("12 parsecs")
	assert.False(t, ok)
	_, ok = ParseBytes("-5MiB")
	assert.False(t, ok)

	r, ok := ParseRate("1.5MiB/s")
	assert.True(t, ok)
	assert.InDelta(t, 1.5*(1<<20), r, 1e-6)

	r, ok = ParseRate(2048.0)
	assert.True(t, ok)
	assert.InDelta(t, 2048, r, 1e-9)

	_, ok = ParseRate("Unknown B/s")
	assert.False(t, ok)
}

func TestParseBytesRejectsInt64Overflow(t *testing.T) {
	for _, in := range []any{float64(math.MaxInt64), "8388608TiB", "9223372036854775807", 1e300} {
		_, ok := ParseBytes(in)
		assert.False(t, ok, "input %v", in)
	}
	_, ok := ParseRate("8388608TiB/s")
	assert.False(t, ok)

	b, ok := ParseBytes("8388607TiB")
	assert.True(t, ok)
	assert.Positive(t, b)

	p := Progress{BytesTotal: 4096}.Apply(ProgressUpdate{BytesTotal: float64(math.MaxInt64)})
	assert.Equal(t, int64(4096), p.BytesTotal)
}

func TestParseETA(t *testing.T) {
	cases := map[any]int64{
		"00:13":    13,
		"01:02:03": 3723,
		"42s":      42,
		"42":       42,
		42.4:       42,
	}
	for in, want := range cases {
		got, ok := ParseETA(in)
		assert.True(t, ok, "input %v", in)
		assert.Equal(t, want, got, "input %v", in)
	}
	for _, in := range []any{"N/A", "1:2:3:4", "a:b", "12 min", -1, nil, 1e300, float64(1 << 53), "9223372036854775807:59", "9007199254740991:00:00"} {
		_, ok := ParseETA(in)
		assert.False(t, ok, "input %v", in)
	}

	p := Progress{ETASeconds: 13}.Apply(ProgressUpdate{ETA: "9223372036854775807:59"})
	assert.Equal(t, int64(13), p.ETASeconds)
}

func TestProgressApplyKeepsLastGoodValues(t *testing.T) {
	p := Progress{}.Apply(ProgressUpdate{Percent: "40%", Speed: "1MiB/s", ETA: "00:10", BytesDone: "4MiB", BytesTotal: "10MiB"})
	assert.InDelta(t, 40, p.Percent, 1e-9)
	assert.InDelta(t, 1<<20, p.SpeedBps, 1e-9)
	assert.Equal(t, int64(10), p.ETASeconds)

	p = p.Apply(ProgressUpdate{Percent: "garbage", Speed: "Unknown", ETA: "N/A"})
	assert.InDelta(t, 40, p.Percent, 1e-9)
	assert.InDelta(t, 1<<20, p.SpeedBps, 1e-9)
	assert.Equal(t, int64(10), p.ETASeconds)

	p = p.Apply(ProgressUpdate{Percent: 30.0})
	assert.InDelta(t, 40, p.Percent, 1e-9, "percent must not go backwards")
}

func TestProgressApplyDerivesPercentFromBytes(t *testing.T) {
	p := Progress{}.Apply(ProgressUpdate{BytesDone: 25, BytesTotal: 100})
	assert.InDelta(t, 25, p.Percent, 1e-9)
}

func TestProgressComplete(t *testing.T) {
	p := Progress{Percent: 80, BytesDone: 8, BytesTotal: 10, SpeedBps: 5, ETASeconds: 3}.Complete()
	assert.Equal(t, Progress{Percent: 100, BytesDone: 10, BytesTotal: 10}, p)
}

func TestProgressPercentMonotonicProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("percent is non-decreasing and bounded", prop.ForAll(
		func(updates []float64) bool {
			var p Progress
			for _, u := range updates {
				next := p.Apply(ProgressUpdate{Percent: u})
				if next.Percent < p.Percent || next.Percent < 0 || next.Percent > 100 {
					return false
				}
				p = next
			}
			return true
		},
		gen.SliceOf(gen.Float64Range(-50, 150)),
	))

	properties.TestingRun(t)
}

func TestProgressText(t *testing.T) {
	assert.Equal(t, "00:13", ETAText(13))
	assert.Equal(t, "01:02:03", ETAText(3723))
	assert.Equal(t, "00:00", ETAText(-1))
	assert.Equal(t, "1.5 MiB/s", SpeedText(1.5*(1<<20)))
	assert.Equal(t, "0 B", BytesText(0))
	assert.Equal(t, "2.0 KiB", BytesText(2048))
}
