package metricspush

import "github.com/prometheus/client_golang/prometheus"

// metrics is the accounting registry pushed off-site. Field deployments
// cannot be scraped, so these are the numbers head office sees.
type metrics struct {
	collectionsRecorded *prometheus.CounterVec
	paymentsRecorded    *prometheus.CounterVec
	rateConflicts       *prometheus.CounterVec
	integrityFindings   *prometheus.CounterVec
	outstandingTotal    prometheus.Gauge
}

func newMetrics(registry *prometheus.Registry) *metrics {
	m := &metrics{
		collectionsRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trackvault_push_collections_recorded_total",
			Help: "Deliveries recorded, by product code.",
		}, []string{"product_code"}),
		paymentsRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trackvault_push_payments_recorded_total",
			Help: "Supplier payments recorded, by method.",
		}, []string{"method"}),
		rateConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trackvault_push_rate_conflicts_total",
			Help: "Rejected overlapping rate submissions, by product code.",
		}, []string{"product_code"}),
		integrityFindings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trackvault_push_integrity_findings_total",
			Help: "Rate table integrity findings, by product code.",
		}, []string{"product_code"}),
		outstandingTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trackvault_push_outstanding_total",
			Help: "Sum of outstanding supplier balances from the latest snapshots.",
		}),
	}

	if registry != nil {
		registry.MustRegister(
			m.collectionsRecorded,
			m.paymentsRecorded,
			m.rateConflicts,
			m.integrityFindings,
			m.outstandingTotal,
		)
	}
	return m
}

func (m *metrics) setOutstandingTotal(total float64) {
	if m == nil {
		return
	}
	m.outstandingTotal.Set(total)
}
