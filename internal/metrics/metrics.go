package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	bookingCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "turnero",
			Name:      "booking_created_total",
			Help:      "Count of bookings created.",
		},
	)

	bookingTransition = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "turnero",
			Name:      "booking_transition_total",
			Help:      "Count of booking lifecycle transitions by event.",
		},
		[]string{"event"},
	)

	bookingConflict = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "turnero",
			Name:      "booking_conflict_total",
			Help:      "Count of booking attempts rejected due to slot conflicts.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "turnero",
			Name:      "http_requests_total",
			Help:      "Count of API requests by handler.",
		},
		[]string{"handler"},
	)

	slotQueries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "turnero",
			Name:      "slot_queries_total",
			Help:      "Count of slot availability queries.",
		},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(bookingCreated, bookingTransition, bookingConflict, httpRequests, slotQueries)
	})
}

func IncBookingCreated() {
	bookingCreated.Inc()
}

func IncBookingTransition(event string) {
	bookingTransition.WithLabelValues(event).Inc()
}

func IncBookingConflict() {
	bookingConflict.Inc()
}

func IncHTTP(handler string) {
	httpRequests.WithLabelValues(handler).Inc()
}

func IncSlotQuery() {
	slotQueries.Inc()
}
