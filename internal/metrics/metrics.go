// Package metrics exposes the Prometheus collectors of the service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "staymarket_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "staymarket_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	appealDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "staymarket_appeal_decisions_total",
		Help: "Host appeal decisions by outcome",
	}, []string{"decision"})

	bookingsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "staymarket_bookings_created_total",
		Help: "Bookings committed",
	})

	bookingNights = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "staymarket_booking_nights",
		Help:    "Length of committed bookings in nights",
		Buckets: []float64{1, 2, 3, 5, 7, 14, 30},
	})

	liveSubscriptions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "staymarket_live_subscriptions",
		Help: "Open live query subscriptions by collection",
	}, []string{"collection"})
)

// ObserveHTTPRequest records an HTTP request metric.
func ObserveHTTPRequest(method, route, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, status).Inc()
	httpRequestDuration.WithLabelValues(method, route, status).Observe(duration.Seconds())
}

func ObserveDecision(decision string) { appealDecisions.WithLabelValues(decision).Inc() }

func ObserveBooking(nights int) {
	bookingsCreated.Inc()
	bookingNights.Observe(float64(nights))
}

func SubscriptionOpened(collection string) { liveSubscriptions.WithLabelValues(collection).Inc() }

func SubscriptionClosed(collection string) { liveSubscriptions.WithLabelValues(collection).Dec() }
