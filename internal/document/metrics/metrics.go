package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the document workflow.
type Metrics struct {
	Transitions       *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	StorageFailures   *prometheus.CounterVec
	CASConflicts      prometheus.Counter
}

// New creates a new Metrics instance with all document metrics registered.
func New() *Metrics {
	return &Metrics{
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "actarchive_document_transitions_total",
			Help: "Total number of committed document workflow transitions",
		}, []string{"action"}),
		OperationDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "actarchive_document_operation_duration_seconds",
			Help:    "Duration of document workflow operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"operation"}),
		StorageFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "actarchive_document_storage_failures_total",
			Help: "File storage failures by phase (prepare, abort, finalize, delete)",
		}, []string{"phase"}),
		CASConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "actarchive_document_status_conflicts_total",
			Help: "Transitions rejected because the status changed concurrently",
		}),
	}
}

func (m *Metrics) IncrementTransition(action string) {
	m.Transitions.WithLabelValues(action).Inc()
}

// ObserveOperation records the duration of an operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveOperation(operation string, start time.Time) {
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementStorageFailure(phase string) {
	m.StorageFailures.WithLabelValues(phase).Inc()
}

func (m *Metrics) IncrementCASConflict() {
	m.CASConflicts.Inc()
}
