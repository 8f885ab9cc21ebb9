package metrics

import "github.com/prometheus/client_golang/prometheus"

// SweepMetrics counts per-tender outcomes of the auto-close sweep.
type SweepMetrics struct {
	outcomes *prometheus.CounterVec
	lag      prometheus.Histogram
}

// Sweep outcome labels.
const (
	SweepOutcomeClosed  = "closed"
	SweepOutcomeSkipped = "skipped"
	SweepOutcomeFailed  = "failed"
)

// NewSweepMetrics registers the sweep metrics on the provided registerer.
func NewSweepMetrics(reg prometheus.Registerer) *SweepMetrics {
	if reg == nil {
		return &SweepMetrics{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tender_autoclose_total",
		Help: "Tenders processed by the auto-close sweep, by outcome.",
	}, []string{"outcome"})
	lag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tender_autoclose_lag_seconds",
		Help:    "Delay between a tender deadline and the sweep that closed it.",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 900, 3600},
	})
	reg.MustRegister(outcomes, lag)
	return &SweepMetrics{outcomes: outcomes, lag: lag}
}

// Add records n tenders with the given outcome.
func (m *SweepMetrics) Add(outcome string, n int) {
	if m == nil || m.outcomes == nil || n <= 0 {
		return
	}
	m.outcomes.WithLabelValues(outcome).Add(float64(n))
}

// ObserveLag records how late a tender was closed, in seconds.
func (m *SweepMetrics) ObserveLag(seconds float64) {
	if m == nil || m.lag == nil {
		return
	}
	if seconds < 0 {
		seconds = 0
	}
	m.lag.Observe(seconds)
}
