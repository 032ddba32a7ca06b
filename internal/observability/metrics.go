package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce        sync.Once
	httpRequestsTotal   *prometheus.CounterVec
	httpLatencySeconds  *prometheus.HistogramVec
	httpErrorsTotal     *prometheus.CounterVec
	sessionsActiveGauge prometheus.Gauge
	sessionUsersGauge   prometheus.Gauge
	eventsBroadcast     *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used across the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "verdict_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "verdict_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "verdict_errors_total",
			Help: "Total number of error responses returned by API endpoints.",
		}, []string{"method", "route", "status"})

		sessionsActiveGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "verdict_sessions_active",
			Help: "Number of live collaborative sessions.",
		})

		sessionUsersGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "verdict_session_users",
			Help: "Number of users connected across all sessions.",
		})

		eventsBroadcast = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "verdict_events_broadcast_total",
			Help: "Total number of session events broadcast, by event name.",
		}, []string{"event"})

		prometheus.MustRegister(
			httpRequestsTotal,
			httpLatencySeconds,
			httpErrorsTotal,
			sessionsActiveGauge,
			sessionUsersGauge,
			eventsBroadcast,
		)
	})
}

// Requests exposes the counter for API requests.
func Requests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// Latency exposes the latency histogram for API requests.
func Latency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// Errors exposes the counter for API error responses.
func Errors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// SessionsActive exposes the gauge tracking live sessions.
func SessionsActive() prometheus.Gauge {
	RegisterMetrics()
	return sessionsActiveGauge
}

// SessionUsers exposes the gauge tracking connected users.
func SessionUsers() prometheus.Gauge {
	RegisterMetrics()
	return sessionUsersGauge
}

// EventsBroadcast exposes the counter for broadcast session events.
func EventsBroadcast() *prometheus.CounterVec {
	RegisterMetrics()
	return eventsBroadcast
}
