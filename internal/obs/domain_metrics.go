package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// SubmissionOutcomesTotal counts finished submission workflows by outcome.
	SubmissionOutcomesTotal *prometheus.CounterVec
	// WorkflowDuration records end-to-end submission latency in milliseconds.
	WorkflowDuration *prometheus.HistogramVec
	// LedgerAppendTotal counts ledger append attempts per backend and result.
	LedgerAppendTotal *prometheus.CounterVec
	// NotificationDeliveriesTotal counts confirmation email attempts per transport and result.
	NotificationDeliveriesTotal *prometheus.CounterVec
	// EventsPublishedTotal counts domain event publications per sink and result.
	EventsPublishedTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers the simulator collectors.
// Until it is called the package-level collectors are nil and callers skip recording.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		SubmissionOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submission_outcomes_total",
			Help:      "Count of processed submissions by workflow outcome.",
		}, []string{"outcome"})
		WorkflowDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "submission_workflow_duration_ms",
			Help:      "Latency of the submission workflow in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}, []string{"outcome"})
		LedgerAppendTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_append_total",
			Help:      "Count of ledger append attempts by backend and result.",
		}, []string{"backend", "result"})
		NotificationDeliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_deliveries_total",
			Help:      "Count of confirmation email deliveries by transport and result.",
		}, []string{"transport", "result"})
		EventsPublishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Count of published domain events by sink and result.",
		}, []string{"sink", "result"})

		mustRegisterCollector(reg, SubmissionOutcomesTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				SubmissionOutcomesTotal = v
			}
		})
		mustRegisterCollector(reg, WorkflowDuration, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				WorkflowDuration = v
			}
		})
		mustRegisterCollector(reg, LedgerAppendTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				LedgerAppendTotal = v
			}
		})
		mustRegisterCollector(reg, NotificationDeliveriesTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				NotificationDeliveriesTotal = v
			}
		})
		mustRegisterCollector(reg, EventsPublishedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				EventsPublishedTotal = v
			}
		})
	})
}
