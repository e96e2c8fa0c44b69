package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	framesDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "simutrador",
			Subsystem: "mux",
			Name:      "frames_total",
			Help:      "Inbound frames dispatched, by message type.",
		},
		[]string{"type"},
	)
	framesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "simutrador",
			Subsystem: "mux",
			Name:      "frames_dropped_total",
			Help:      "Inbound frames dropped without a consumer.",
		},
		[]string{"reason"},
	)
	decodeErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "simutrador",
			Subsystem: "mux",
			Name:      "decode_errors_total",
			Help:      "Frames that failed JSON decoding and were skipped.",
		},
	)
	inflightCalls = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "simutrador",
			Subsystem: "mux",
			Name:      "inflight_calls",
			Help:      "Request/response calls awaiting a reply.",
		},
	)
	callDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "simutrador",
			Subsystem: "mux",
			Name:      "call_duration_seconds",
			Help:      "Round-trip time of request/response calls.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"type"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "simutrador",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Requests issued to the auth and trading-data APIs.",
		},
		[]string{"service", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "simutrador",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Auth and trading-data request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
)

// RegisterMetrics registers every collector with the default registry.
// Safe to call from multiple packages; only the first call registers.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			framesDispatched,
			framesDropped,
			decodeErrors,
			inflightCalls,
			callDuration,
			httpRequests,
			httpDuration,
		)
	})
}

// RecordFrame counts one dispatched inbound frame.
func RecordFrame(msgType string) {
	RegisterMetrics()
	framesDispatched.WithLabelValues(msgType).Inc()
}

// RecordDroppedFrame counts a frame dropped without a consumer
// (no subscriber, full buffer, unmatched correlation id, unknown type).
func RecordDroppedFrame(reason string) {
	RegisterMetrics()
	framesDropped.WithLabelValues(reason).Inc()
}

// RecordDecodeError counts a skipped undecodable frame.
func RecordDecodeError() {
	RegisterMetrics()
	decodeErrors.Inc()
}

// CallStarted marks a pending call as in flight.
func CallStarted() {
	RegisterMetrics()
	inflightCalls.Inc()
}

// CallFinished marks a pending call resolved and records its round trip.
func CallFinished(msgType string, duration time.Duration) {
	RegisterMetrics()
	inflightCalls.Dec()
	callDuration.WithLabelValues(msgType).Observe(duration.Seconds())
}

// RecordHTTPRequest counts one auth or trading-data request.
func RecordHTTPRequest(service string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(service, statusLabel).Inc()
	httpDuration.WithLabelValues(service, statusLabel).Observe(duration.Seconds())
}
