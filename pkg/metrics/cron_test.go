package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCronJobMetricsCountsRunsByResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	job := "tender-auto-close"
	m.ObserveRun(job, 250*time.Millisecond, nil)
	m.ObserveRun(job, 10*time.Millisecond, errors.New("db down"))
	m.IncSkippedCycle()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	for result, want := range map[string]float64{"success": 1, "failure": 1} {
		got, err := fetchRunCount(mfs, job, result)
		if err != nil {
			t.Fatalf("fetch %s: %v", result, err)
		}
		if got != want {
			t.Fatalf("expected %s=%v, got %f", result, want, got)
		}
	}

	if got, err := fetchHistogramSum(mfs, "cron_job_duration_seconds", "job", job); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0.25 {
		t.Fatalf("expected duration sum above 0.25s, got %f", got)
	}

	skipped := findMetricFamily(mfs, "cron_cycles_skipped_total")
	if skipped == nil || skipped.GetMetric()[0].GetCounter().GetValue() != 1 {
		t.Fatalf("expected one skipped cycle")
	}
}

func fetchRunCount(mfs []*dto.MetricFamily, job, result string) (float64, error) {
	mf := findMetricFamily(mfs, "cron_job_runs_total")
	if mf == nil {
		return 0, fmt.Errorf("cron_job_runs_total not found")
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), "job", job) && matchesLabel(metric.GetLabel(), "result", result) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("no sample for job=%s result=%s", job, result)
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}

func TestSweepMetricsCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSweepMetrics(reg)
	m.Add(SweepOutcomeClosed, 3)
	m.Add(SweepOutcomeFailed, 1)
	m.Add(SweepOutcomeSkipped, 0)
	m.ObserveLag(12)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "tender_autoclose_total", "outcome", SweepOutcomeClosed); err != nil || got != 3 {
		t.Fatalf("closed: got %f err %v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "tender_autoclose_total", "outcome", SweepOutcomeFailed); err != nil || got != 1 {
		t.Fatalf("failed: got %f err %v", got, err)
	}
	if _, err := fetchCounterValue(mfs, "tender_autoclose_total", "outcome", SweepOutcomeSkipped); err == nil {
		t.Fatal("zero adds should not create a series")
	}
	lag := findMetricFamily(mfs, "tender_autoclose_lag_seconds")
	if lag == nil || lag.GetMetric()[0].GetHistogram().GetSampleSum() != 12 {
		t.Fatal("expected lag sample of 12s")
	}
}

func TestAuditMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewAuditMetrics(reg)
	m.AddFlushed(5)
	m.IncFailure()
	m.IncFailure()
	m.IncPersistentFailure()
	m.SetPending(7)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	checks := map[string]float64{
		"audit_entries_flushed_total":           5,
		"audit_flush_failures_total":            2,
		"audit_flush_persistent_failures_total": 1,
	}
	for name, want := range checks {
		mf := findMetricFamily(mfs, name)
		if mf == nil {
			t.Fatalf("metric %s missing", name)
		}
		if got := mf.GetMetric()[0].GetCounter().GetValue(); got != want {
			t.Fatalf("%s: expected %f got %f", name, want, got)
		}
	}
	pending := findMetricFamily(mfs, "audit_entries_pending")
	if pending == nil || pending.GetMetric()[0].GetGauge().GetValue() != 7 {
		t.Fatal("expected pending gauge of 7")
	}
}

func TestNilRegistererMetricsAreNoops(t *testing.T) {
	NewSweepMetrics(nil).Add(SweepOutcomeClosed, 1)
	NewAuditMetrics(nil).AddFlushed(1)
	var m *AuditMetrics
	m.IncFailure()
	NewCronJobMetrics(nil).ObserveRun("job", time.Second, nil)
	NewCronJobMetrics(nil).IncSkippedCycle()
}

func TestHTTPMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)
	m.Observe("POST", "/api/v1/tenders", 201, 30*time.Millisecond)
	m.Observe("POST", "/api/v1/tenders", 201, 10*time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "http_requests_total", "status", "201"); err != nil || got != 2 {
		t.Fatalf("requests: got %f err %v", got, err)
	}
	if got, err := fetchHistogramSum(mfs, "http_request_duration_seconds", "route", "/api/v1/tenders"); err != nil || got <= 0 {
		t.Fatalf("latency: got %f err %v", got, err)
	}

	var nilMetrics *HTTPMetrics
	nilMetrics.Observe("GET", "/", 200, time.Millisecond)
}

func TestCronJobMetricsStampsLastSuccess(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	m.now = func() time.Time { return time.Unix(1767225600, 0) }
	m.ObserveRun("tender-auto-close", time.Second, nil)
	m.now = func() time.Time { return time.Unix(1767229200, 0) }
	m.ObserveRun("tender-auto-close", time.Second, errors.New("boom"))

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	mf := findMetricFamily(mfs, "cron_job_last_success_timestamp_seconds")
	if mf == nil || len(mf.GetMetric()) != 1 {
		t.Fatalf("expected one last success sample")
	}
	if got := mf.GetMetric()[0].GetGauge().GetValue(); got != 1767225600 {
		t.Fatalf("unexpected timestamp %f", got)
	}
}

func TestOutboxMetricsCountsByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)
	m.Inc("tender_closed", OutboxOutcomePublished)
	m.Inc("tender_closed", OutboxOutcomePublished)
	m.Inc("", OutboxOutcomeDeadLettered)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "outbox_events_total", "outcome", OutboxOutcomePublished); err != nil || got != 2 {
		t.Fatalf("expected 2 published, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "outbox_events_total", "event_type", "unknown"); err != nil || got != 1 {
		t.Fatalf("expected unknown event type bucket, got %f (%v)", got, err)
	}
	var nilMetrics *OutboxMetrics
	nilMetrics.Inc("tender_closed", OutboxOutcomeRetried)
}
