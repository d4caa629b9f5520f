// SPDX-License-Identifier: MIT

// Package telemetry provides OpenTelemetry tracing utilities for clipgate.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	// Session attributes. Source URLs are never attached, only the host.
	SessionIDKey    = "session.id"
	SessionModeKey  = "session.mode"
	SessionHostKey  = "session.source_host"
	SessionStateKey = "session.state"

	// Delivery attributes
	DeliveryBytesKey   = "delivery.bytes"
	DeliveryOutcomeKey = "delivery.outcome"

	// Gate attributes
	GateWaitMSKey = "gate.wait_ms"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// SessionAttributes creates session-related span attributes. Empty values are skipped.
func SessionAttributes(id, mode, host string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)
	if id != "" {
		attrs = append(attrs, attribute.String(SessionIDKey, id))
	}
	if mode != "" {
		attrs = append(attrs, attribute.String(SessionModeKey, mode))
	}
	if host != "" {
		attrs = append(attrs, attribute.String(SessionHostKey, host))
	}
	return attrs
}

// DeliveryAttributes creates artifact delivery span attributes.
func DeliveryAttributes(bytes int64, outcome string, gateWaitMS int64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int64(DeliveryBytesKey, bytes),
		attribute.String(DeliveryOutcomeKey, outcome),
		attribute.Int64(GateWaitMSKey, gateWaitMS),
	}
}

// ErrorAttributes marks a span as failed with a coarse error class. Error
// text is not attached; it may quote upstream output.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
