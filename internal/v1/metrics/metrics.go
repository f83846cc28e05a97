package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Naming convention: namespace_subsystem_name.
// - namespace: castwire
// - subsystem: connection, room, frame, admission, ratelimit
//
// Gauges track current state, counters track cumulative events, histograms
// track latency distributions.

var (
	// ActiveConnections is the current number of accepted WebSocket connections.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "castwire",
		Subsystem: "connection",
		Name:      "active",
		Help:      "Current number of active WebSocket connections",
	})

	// ActiveRooms is the current number of rooms held by the store.
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "castwire",
		Subsystem: "room",
		Name:      "active",
		Help:      "Current number of active rooms",
	})

	// RoomParticipants is the current occupancy of each room, 0-2.
	RoomParticipants = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "castwire",
		Subsystem: "room",
		Name:      "participants",
		Help:      "Number of participants in each room",
	}, []string{"room_id"})

	// FrameTotal counts every inbound frame the coordinator routes, by kind
	// and outcome.
	FrameTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "castwire",
		Subsystem: "frame",
		Name:      "total",
		Help:      "Total inbound frames processed",
	}, []string{"type", "status"})

	// FrameDuration is the time spent routing and handling one inbound frame.
	FrameDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "castwire",
		Subsystem: "frame",
		Name:      "duration_seconds",
		Help:      "Time spent processing one inbound frame",
		Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
	}, []string{"type"})

	// AdmissionTotal counts create-room/join-room outcomes. The coordinator
	// records "created", "joined" and "invalid_key"; other rejections are
	// not counted here.
	AdmissionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "castwire",
		Subsystem: "admission",
		Name:      "total",
		Help:      "Total room admission attempts by result",
	}, []string{"result"})

	// RateLimitCircuitState mirrors the rate-limit store's circuit breaker
	// state: 0 closed, 1 open, 2 half-open.
	RateLimitCircuitState = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "castwire",
		Subsystem: "ratelimit",
		Name:      "circuit_state",
		Help:      "State of the rate limit store's circuit breaker (0 closed, 1 open, 2 half-open)",
	})

	// RateLimitExceeded counts requests rejected by a rate limiter.
	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "castwire",
		Subsystem: "ratelimit",
		Name:      "exceeded_total",
		Help:      "Total requests that exceeded a rate limit",
	}, []string{"limiter"})
)

func IncConnection() {
	ActiveConnections.Inc()
}

func DecConnection() {
	ActiveConnections.Dec()
}
