package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks inventory imports.
type Metrics struct {
	BatchesImported prometheus.Counter
	RowsImported    prometheus.Counter
	ImportFailures  *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		BatchesImported: promauto.NewCounter(prometheus.CounterOpts{
			Name: "actarchive_inventory_batches_imported_total",
			Help: "Inventory batches committed",
		}),
		RowsImported: promauto.NewCounter(prometheus.CounterOpts{
			Name: "actarchive_inventory_rows_imported_total",
			Help: "Inventory records committed across all batches",
		}),
		ImportFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "actarchive_inventory_import_failures_total",
			Help: "Rejected inventory imports by error code",
		}, []string{"code"}),
	}
}

func (m *Metrics) ObserveImport(rows int) {
	if m == nil {
		return
	}
	m.BatchesImported.Inc()
	m.RowsImported.Add(float64(rows))
}

func (m *Metrics) IncrementImportFailure(code string) {
	if m == nil {
		return
	}
	m.ImportFailures.WithLabelValues(code).Inc()
}
