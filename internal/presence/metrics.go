package presence

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the scan state machine.
type Metrics struct {
	// Scan outcomes by kind (arrival, departure, or a failure reason)
	ScanOutcome *prometheus.CounterVec

	// End-to-end scan latency including the ledger transaction
	ScanLatency prometheus.Histogram
}

// NewMetrics creates a Metrics instance with all scan metrics registered.
func NewMetrics() *Metrics {
	return &Metrics{
		ScanOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "logbook_scan_outcomes_total",
			Help: "Total scan outcomes by kind",
		}, []string{"outcome"}),

		ScanLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "logbook_scan_duration_seconds",
			Help:    "Duration of scan processing including the ledger transaction",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// IncrementOutcome records a scan outcome.
func (m *Metrics) IncrementOutcome(outcome string) {
	if m != nil {
		m.ScanOutcome.WithLabelValues(outcome).Inc()
	}
}

// ObserveLatency records the duration of one scan.
func (m *Metrics) ObserveLatency(d time.Duration) {
	if m != nil {
		m.ScanLatency.Observe(d.Seconds())
	}
}
