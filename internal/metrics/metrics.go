// Package metrics provides Prometheus instrumentation for the Open Rooms
// chat client. It exposes counters for poll cycles and delivered messages,
// an error counter labeled by operation, and a histogram for fetch latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PollCycles counts completed poll cycles, including no-op cycles where
	// no room was active.
	PollCycles = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orc_poll_cycles_total",
		Help: "Total number of sync loop cycles executed",
	})

	// FetchErrors counts failed remote operations, labeled by operation:
	// "poll", "backfill", or "ack".
	FetchErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orc_fetch_errors_total",
		Help: "Total number of failed remote fetch operations",
	}, []string{"op"})

	// MessagesDelivered counts messages placed on the delivery queue,
	// labeled by source: "poll", "backfill", or "send".
	MessagesDelivered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orc_messages_delivered_total",
		Help: "Total number of messages enqueued for the consumer",
	}, []string{"source"})

	// FetchDuration records the latency of forward polls in seconds.
	FetchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "orc_fetch_duration_seconds",
		Help:    "Forward poll latency in seconds",
		Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	})

	// TrackedRooms tracks the number of rooms with a cursor in the store.
	TrackedRooms = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orc_tracked_rooms",
		Help: "Current number of rooms with a tracked cursor",
	})
)

func init() {
	prometheus.MustRegister(
		PollCycles,
		FetchErrors,
		MessagesDelivered,
		FetchDuration,
		TrackedRooms,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
