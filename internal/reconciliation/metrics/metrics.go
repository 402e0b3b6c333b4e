package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks reconciliation reports.
type Metrics struct {
	ReportDuration *prometheus.HistogramVec
	CacheLookups   *prometheus.CounterVec
	LastMatchRate  *prometheus.GaugeVec
}

func New() *Metrics {
	return &Metrics{
		ReportDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "actarchive_reconciliation_duration_seconds",
			Help:    "Time to compute a reconciliation report",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"report"}),
		CacheLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "actarchive_reconciliation_cache_lookups_total",
			Help: "Reconciliation cache lookups by result (hit, miss, error)",
		}, []string{"result"}),
		LastMatchRate: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "actarchive_reconciliation_last_match_rate",
			Help: "Match rate of the last unfiltered comparison per batch",
		}, []string{"batch_id"}),
	}
}

func (m *Metrics) ObserveReport(report string, start time.Time) {
	if m == nil {
		return
	}
	m.ReportDuration.WithLabelValues(report).Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementCacheLookup(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) SetMatchRate(batchID string, rate float64) {
	if m == nil {
		return
	}
	m.LastMatchRate.WithLabelValues(batchID).Set(rate)
}
