package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "rapidride"

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "route", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   []float64{0.1, 0.3, 0.5, 0.7, 1, 3, 5, 7, 10},
		},
		[]string{"method", "route", "status"},
	)

	RideTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "ride_transitions_total", Help: "Ride status transitions by target status"},
		[]string{"status"},
	)
	ActiveRides = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "active_rides", Help: "Rides in a non-terminal status at last admin count"})

	DriversOnline     = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "drivers_online", Help: "Number of online drivers"})
	SocketConnections = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "socket_connections", Help: "Open realtime sessions"})

	EstimatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "estimates_total", Help: "Estimates served by result variant"},
		[]string{"variant"},
	)
	EstimatorCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "estimator_call_duration_seconds",
			Help:      "External estimator call latency",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"call", "outcome"},
	)
	EstimateCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "estimate_cache_total", Help: "Estimate cache lookups by result"},
		[]string{"result"},
	)

	EventPublishErrors = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "event_publish_errors_total", Help: "Lifecycle events that failed to publish"})
)
