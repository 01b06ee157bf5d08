package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatstream",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "chatstream",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
		},
		[]string{"method", "route"},
	)

	// Chat streams by final outcome
	StreamsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatstream",
			Subsystem: "chat",
			Name:      "streams_total",
			Help:      "Chat replies by provider and final status",
		},
		[]string{"provider", "status"},
	)

	FramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatstream",
			Subsystem: "chat",
			Name:      "frames_total",
			Help:      "Frames written to clients",
		},
		[]string{"role"},
	)

	ProviderErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatstream",
			Subsystem: "chat",
			Name:      "provider_errors_total",
			Help:      "Completion provider failures",
		},
		[]string{"provider", "stage"},
	)

	StreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "chatstream",
			Subsystem: "chat",
			Name:      "stream_duration_seconds",
			Help:      "Time from accepted prompt to final bot frame",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"provider", "streaming"},
	)

	FirstFragmentDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "chatstream",
			Subsystem: "chat",
			Name:      "first_fragment_seconds",
			Help:      "Time to the first non-empty completion fragment",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"provider"},
	)

	ActiveStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "chatstream",
			Subsystem: "chat",
			Name:      "active_streams",
			Help:      "Replies currently streaming",
		},
	)

	ThrottledTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chatstream",
			Subsystem: "http",
			Name:      "throttled_total",
			Help:      "Requests rejected by the rate limiter",
		},
	)
)

// RecordRequest records an HTTP request with its route template.
func RecordRequest(method, route string, status int, durationSec float64) {
	if route == "" {
		route = "unmatched"
	}
	RequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	RequestDuration.WithLabelValues(method, route).Observe(durationSec)
}

func RecordStream(provider, status string, streaming bool, durationSec float64) {
	if provider == "" {
		provider = "unknown"
	}
	StreamsTotal.WithLabelValues(provider, status).Inc()
	StreamDuration.WithLabelValues(provider, strconv.FormatBool(streaming)).Observe(durationSec)
}

func RecordFrame(role string) {
	FramesTotal.WithLabelValues(role).Inc()
}

// RecordProviderError counts a failure while opening ("open") or reading ("recv") a completion.
func RecordProviderError(provider, stage string) {
	ProviderErrorsTotal.WithLabelValues(provider, stage).Inc()
}

func RecordFirstFragment(provider string, durationSec float64) {
	FirstFragmentDuration.WithLabelValues(provider).Observe(durationSec)
}
