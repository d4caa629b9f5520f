package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsCreatedTotal counts created download sessions by mode.
	SessionsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clipgate_sessions_created_total",
		Help: "Total number of download sessions created, by mode.",
	}, []string{"mode"})

	// SessionTerminalTotal counts sessions reaching a terminal state.
	SessionTerminalTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clipgate_session_terminal_total",
		Help: "Total number of sessions reaching a terminal state, by state.",
	}, []string{"state"})

	// TokenRejectTotal counts rejected download links by internal reason.
	TokenRejectTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clipgate_token_reject_total",
		Help: "Total number of rejected download links, by reason.",
	}, []string{"reason"})

	// BytesStreamedTotal counts artifact bytes delivered to clients.
	BytesStreamedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clipgate_bytes_streamed_total",
		Help: "Total number of artifact bytes streamed to clients.",
	})

	// StreamDurationSeconds observes artifact delivery duration by outcome.
	StreamDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "clipgate_stream_duration_seconds",
		Help:    "Artifact delivery duration, by outcome.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
	}, []string{"outcome"})

	// SweeperRemovedTotal counts sessions and directories reclaimed by the sweeper.
	SweeperRemovedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clipgate_sweeper_removed_total",
		Help: "Total number of items reclaimed by the expiry sweeper, by kind (expired/orphan).",
	}, []string{"kind"})

	// SweeperSkippedTotal counts expired sessions skipped because a delivery held them.
	SweeperSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clipgate_sweeper_skipped_total",
		Help: "Total number of expired sessions skipped because a delivery was in flight.",
	})

	// ExtractorCallsTotal counts extractor invocations by operation and result.
	ExtractorCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clipgate_extractor_calls_total",
		Help: "Total number of extractor invocations, by operation and result.",
	}, []string{"op", "result"})

	// ExtractorThrottleWaitSeconds observes time spent waiting on the upstream rate limiter.
	ExtractorThrottleWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "clipgate_extractor_throttle_wait_seconds",
		Help:    "Time spent waiting for the upstream rate limiter.",
		Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10},
	})

	// MetadataCacheTotal counts metadata cache lookups by result (hit/miss).
	MetadataCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clipgate_metadata_cache_total",
		Help: "Total number of metadata cache lookups, by result.",
	}, []string{"result"})
)

// ProcTerminateTotal counts signals sent to extractor process groups.
var ProcTerminateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "clipgate_extractor_process_signals_total",
	Help: "Signals sent to extractor process groups on cancellation.",
}, []string{"signal", "result"})

// BusDroppedTotal counts change signals dropped because a subscriber was full.
var BusDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "clipgate_bus_signals_dropped_total",
	Help: "Session change signals dropped for slow subscribers.",
}, []string{"backend"})
