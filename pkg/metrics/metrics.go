// Package metrics registers the Prometheus collectors exported at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ride_dispatch"

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	BookingTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "booking_transitions_total", Help: "Accepted booking status transitions"},
		[]string{"status"},
	)
	TransitionRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "booking_transition_rejections_total", Help: "Rejected booking transitions by reason code"},
		[]string{"code"},
	)
	Settlements = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "settlements_total", Help: "Completed trip settlements"})

	NotificationRouting = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "notification_routing_total", Help: "New booking notifications by routing mode"},
		[]string{"mode"},
	)
	ConnectedClients = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "realtime_connected_clients", Help: "Open realtime connections"})
)
