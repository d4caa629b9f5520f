package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// NotifySubscribers tracks open progress subscriptions.
	NotifySubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "clipgate_notify_subscribers",
		Help: "Number of open session progress subscriptions.",
	})

	// NotifyEventsTotal counts emitted progress events by source.
	NotifyEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clipgate_notify_events_total",
		Help: "Total number of progress events emitted, by source (initial, signal, poll).",
	}, []string{"source"})
)
