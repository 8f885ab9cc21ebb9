package metrics

import "github.com/prometheus/client_golang/prometheus"

// AuditMetrics tracks the batched audit recorder.
type AuditMetrics struct {
	flushed    prometheus.Counter
	failures   prometheus.Counter
	persistent prometheus.Counter
	backfilled prometheus.Counter
	pending    prometheus.Gauge
}

// NewAuditMetrics registers the audit recorder metrics.
func NewAuditMetrics(reg prometheus.Registerer) *AuditMetrics {
	if reg == nil {
		return &AuditMetrics{}
	}
	m := &AuditMetrics{
		flushed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audit_entries_flushed_total",
			Help: "Audit entries durably written.",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audit_flush_failures_total",
			Help: "Failed audit flush attempts.",
		}),
		persistent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audit_flush_persistent_failures_total",
			Help: "Audit flushes that exhausted their retry budget.",
		}),
		backfilled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audit_entries_backfilled_total",
			Help: "Audit entries restored from committed outbox events.",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "audit_entries_pending",
			Help: "Audit entries buffered and not yet written.",
		}),
	}
	reg.MustRegister(m.flushed, m.failures, m.persistent, m.backfilled, m.pending)
	return m
}

// AddFlushed counts entries written by a successful flush.
func (m *AuditMetrics) AddFlushed(n int) {
	if m == nil || m.flushed == nil {
		return
	}
	m.flushed.Add(float64(n))
}

// IncFailure counts one failed flush.
func (m *AuditMetrics) IncFailure() {
	if m == nil || m.failures == nil {
		return
	}
	m.failures.Inc()
}

// IncPersistentFailure counts one exhausted retry budget.
func (m *AuditMetrics) IncPersistentFailure() {
	if m == nil || m.persistent == nil {
		return
	}
	m.persistent.Inc()
}

// SetPending publishes the current buffer depth.
func (m *AuditMetrics) SetPending(n int) {
	if m == nil || m.pending == nil {
		return
	}
	m.pending.Set(float64(n))
}

// AddBackfilled counts entries restored from the outbox.
func (m *AuditMetrics) AddBackfilled(n int) {
	if m == nil || m.backfilled == nil {
		return
	}
	m.backfilled.Add(float64(n))
}
