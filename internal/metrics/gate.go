// Package metrics provides Prometheus metrics for clipgate.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// No session_id or request_id labels anywhere in this package.

var (
	// GateInUse tracks download permits currently held.
	GateInUse = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "clipgate_gate_in_use",
		Help: "Number of download permits currently held.",
	})

	// GateWaiting tracks callers queued for a permit.
	GateWaiting = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "clipgate_gate_waiting",
		Help: "Number of callers waiting for a download permit.",
	})

	// GateWaitSeconds observes time spent queued before a permit was granted.
	GateWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "clipgate_gate_wait_seconds",
		Help:    "Time spent waiting for a download permit.",
		Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	})

	// GateRejectTotal counts acquisitions that did not obtain a permit, by reason.
	GateRejectTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clipgate_gate_reject_total",
		Help: "Total number of permit acquisitions that failed, by reason (busy/timeout/cancelled).",
	}, []string{"reason"})
)

// GaugeValue returns the current value of a gauge (for testing).
func GaugeValue(g prometheus.Gauge) float64 {
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		return 0
	}
	return m.GetGauge().GetValue()
}

// CounterValue returns the current value of a counter (for testing).
func CounterValue(c prometheus.Counter) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}
