package reminders

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the reminder sweeper.
type Metrics struct {
	RemindersSentTotal   *prometheus.CounterVec
	SweepsTotal          prometheus.Counter
	SweepsSkipped        prometheus.Counter
	SweepDuration        prometheus.Histogram
	DispatchFailures     prometheus.Counter
	DuplicatesSuppressed prometheus.Counter
}

// NewMetrics creates and registers sweeper metrics. A nil registerer uses
// the default registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		RemindersSentTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reminders_sent_total",
				Help:      "Total number of reminders dispatched",
			},
			[]string{"offset_hours"},
		),

		SweepsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reminder_sweeps_total",
				Help:      "Total number of sweep runs",
			},
		),

		SweepsSkipped: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reminder_sweeps_skipped_total",
				Help:      "Sweep runs skipped because another sweep held the lock",
			},
		),

		SweepDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "reminder_sweep_duration_seconds",
				Help:      "Time to complete a sweep run",
				Buckets:   []float64{.01, .05, .1, .5, 1, 2, 5, 10},
			},
		),

		DispatchFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reminder_dispatch_failures_total",
				Help:      "Reminder dispatch attempts that failed",
			},
		),

		DuplicatesSuppressed: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reminder_duplicates_suppressed_total",
				Help:      "Reminders skipped because they were already recorded as sent",
			},
		),
	}
}
