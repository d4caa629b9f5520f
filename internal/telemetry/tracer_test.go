// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"
)

func resetGlobal(t *testing.T) {
	t.Cleanup(func() { otel.SetTracerProvider(noop.NewTracerProvider()) })
}

func TestNewProviderDisabledInstallsNoop(t *testing.T) {
	resetGlobal(t)
	p, err := NewProvider(context.Background(), Config{ServiceName: "clipgate", ExporterType: "grpc"})
	require.NoError(t, err)
	assert.Nil(t, p.tp)

	_, span := Tracer("download").Start(context.Background(), "download.request")
	assert.False(t, span.IsRecording())
	span.End()
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProviderRejectsUnknownExporter(t *testing.T) {
	resetGlobal(t)
	_, err := NewProvider(context.Background(), Config{Enabled: true, ServiceName: "clipgate", ExporterType: "zipkin"})
	require.EqualError(t, err, "unsupported exporter type: zipkin (supported: grpc, http)")
}

func TestNewProviderEnabledRecordsSpans(t *testing.T) {
	resetGlobal(t)
	for _, exporter := range []string{"grpc", "http"} {
		t.Run(exporter, func(t *testing.T) {
			p, err := NewProvider(context.Background(), Config{
				Enabled:        true,
				ServiceName:    "clipgate",
				ServiceVersion: "test",
				ExporterType:   exporter,
				Endpoint:       "127.0.0.1:1",
				SamplingRate:   1,
			})
			require.NoError(t, err)
			require.NotNil(t, p.tp)

			_, span := Tracer("download").Start(context.Background(), "download.resolve")
			assert.True(t, span.IsRecording())
			assert.True(t, span.SpanContext().IsSampled())
			span.End()

			// The unreachable collector only fails the flush; a cancelled
			// context keeps the test from waiting on retries.
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			_ = p.Shutdown(ctx)
		})
	}
}

func TestSampler(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{rate: 1.0, want: "AlwaysOnSampler"},
		{rate: 2.0, want: "AlwaysOnSampler"},
		{rate: 0.0, want: "AlwaysOffSampler"},
		{rate: -1, want: "AlwaysOffSampler"},
		{rate: 0.25, want: "TraceIDRatioBased{0.25}"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sampler(tt.rate).Description(), "rate %v", tt.rate)
	}
}

func TestShutdownNoopIgnoresCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, (&Provider{}).Shutdown(ctx))
}
