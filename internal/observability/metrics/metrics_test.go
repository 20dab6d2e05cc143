package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if labelsMatch(metric, labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func labelsMatch(metric *dto.Metric, want map[string]string) bool {
	got := map[string]string{}
	for _, lp := range metric.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

func TestBulkMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBulkMetrics(reg)

	m.ObserveOutcome("main", true, 0.2)
	m.ObserveOutcome("main", true, 0.3)
	m.ObserveOutcome("qin_han", false, 1.1)
	m.ObserveBatch("partial")
	m.ObserveDuplicateBlock()
	m.ObserveSkippedLines(3)
	m.ObserveSkippedLines(0)

	if got := counterValue(t, reg, "museumbook_bulk_outcomes_total", map[string]string{"museum": "main", "outcome": "success"}); got != 2 {
		t.Fatalf("main successes = %v, want 2", got)
	}
	if got := counterValue(t, reg, "museumbook_bulk_outcomes_total", map[string]string{"museum": "qin_han", "outcome": "failure"}); got != 1 {
		t.Fatalf("qin_han failures = %v, want 1", got)
	}
	if got := counterValue(t, reg, "museumbook_bulk_batches_total", map[string]string{"result": "partial"}); got != 1 {
		t.Fatalf("partial batches = %v, want 1", got)
	}
	if got := counterValue(t, reg, "museumbook_bulk_duplicate_blocks_total", nil); got != 1 {
		t.Fatalf("duplicate blocks = %v, want 1", got)
	}
	if got := counterValue(t, reg, "museumbook_ingest_skipped_lines_total", nil); got != 3 {
		t.Fatalf("skipped lines = %v, want 3", got)
	}
}

func TestBulkMetricsNilSafe(t *testing.T) {
	var m *BulkMetrics
	m.ObserveOutcome("main", true, 0.1)
	m.ObserveBatch("complete")
	m.ObserveDuplicateBlock()
	m.ObserveSkippedLines(1)
}
