package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Scan metrics
	ScanRuns             *prometheus.CounterVec
	ScanDuration         *prometheus.HistogramVec
	ItemsScanned         *prometheus.CounterVec
	NotificationsCreated *prometheus.CounterVec
	DuplicatesSkipped    *prometheus.CounterVec
	LedgerFailures       *prometheus.CounterVec

	// Delivery metrics
	PushDeliveries  *prometheus.CounterVec
	PushLatency     prometheus.Histogram
	EmailDeliveries *prometheus.CounterVec

	// Database metrics
	DatabaseOperations *prometheus.CounterVec
}

// NewMetrics creates all application metrics and registers them with reg.
// A nil reg registers with the default prometheus registry.
func NewMetrics(namespace, subsystem string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		ScanRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "scan_runs_total",
			Help:      "Total number of reminder scan runs",
		}, []string{"kind", "status"}),
		ScanDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "scan_duration_seconds",
			Help:      "Time spent running a reminder scan",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"kind"}),
		ItemsScanned: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "items_scanned_total",
			Help:      "Total number of source items inspected by scans",
		}, []string{"kind"}),
		NotificationsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "notifications_created_total",
			Help:      "Total number of ledger rows created",
		}, []string{"kind"}),
		DuplicatesSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "duplicates_skipped_total",
			Help:      "Total number of candidates skipped because their idempotency key already existed",
		}, []string{"kind"}),
		LedgerFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "ledger_failures_total",
			Help:      "Total number of candidates that could not be written to the ledger",
		}, []string{"kind"}),
		PushDeliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "push_deliveries_total",
			Help:      "Total number of push delivery attempts by outcome",
		}, []string{"outcome"}),
		PushLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "push_request_duration_seconds",
			Help:      "Duration of push service requests",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		EmailDeliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "email_deliveries_total",
			Help:      "Total number of reminder emails by outcome",
		}, []string{"outcome"}),
		DatabaseOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "database_operations_total",
			Help:      "Total number of database operations",
		}, []string{"operation", "status"}),
	}
}

// New creates metrics on a private registry, for tests and one-shot runs.
func New(namespace string) *Metrics {
	return NewMetrics(namespace, "", prometheus.NewRegistry())
}
