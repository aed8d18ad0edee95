// Package metrics exposes Prometheus counters for the booking engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	BookingsTotal      *prometheus.CounterVec
	CancellationsTotal *prometheus.CounterVec
	ConsultationsTotal prometheus.Counter
	ConsistencyAlerts  prometheus.Counter
	BookingDuration    prometheus.Histogram
}

// New registers the booking metrics on the given registerer. Result labels:
// "ok", "conflict" (slot/stock contention), "rejected" (validation), "error".
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		BookingsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vaccine_booking",
			Name:      "bookings_total",
			Help:      "Booking attempts by result.",
		}, []string{"result"}),
		CancellationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vaccine_booking",
			Name:      "cancellations_total",
			Help:      "Cancellation attempts by result.",
		}, []string{"result"}),
		ConsultationsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "vaccine_booking",
			Name:      "consultation_requests_total",
			Help:      "Consultation requests created.",
		}),
		ConsistencyAlerts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "vaccine_booking",
			Name:      "consistency_alerts_total",
			Help:      "Compensating actions that failed and need operator attention.",
		}),
		BookingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "vaccine_booking",
			Name:      "booking_duration_seconds",
			Help:      "End-to-end duration of Book calls.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// NewNop returns metrics backed by a throwaway registry, for tests.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
