package metrics

import "github.com/prometheus/client_golang/prometheus"

// BulkMetrics exposes counters/histograms for bulk booking submissions.
type BulkMetrics struct {
	outcomesTotal     *prometheus.CounterVec
	requestLatency    *prometheus.HistogramVec
	batchesTotal      *prometheus.CounterVec
	duplicateBlocks   prometheus.Counter
	skippedLinesTotal prometheus.Counter
}

func NewBulkMetrics(reg prometheus.Registerer) *BulkMetrics {
	m := &BulkMetrics{
		outcomesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "museumbook",
			Subsystem: "bulk",
			Name:      "outcomes_total",
			Help:      "Per-record booking outcomes",
		}, []string{"museum", "outcome"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "museumbook",
			Subsystem: "bulk",
			Name:      "request_latency_seconds",
			Help:      "Latency of create-appointment calls, retries included",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		batchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "museumbook",
			Subsystem: "bulk",
			Name:      "batches_total",
			Help:      "Bulk submissions by result",
		}, []string{"result"}),
		duplicateBlocks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "museumbook",
			Subsystem: "bulk",
			Name:      "duplicate_blocks_total",
			Help:      "Batches rejected before submission because of duplicate entries",
		}),
		skippedLinesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "museumbook",
			Subsystem: "ingest",
			Name:      "skipped_lines_total",
			Help:      "Input lines that matched neither row shape",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.outcomesTotal, m.requestLatency, m.batchesTotal, m.duplicateBlocks, m.skippedLinesTotal)
	return m
}

func (m *BulkMetrics) ObserveOutcome(museum string, success bool, seconds float64) {
	if m == nil {
		return
	}
	label := "failure"
	if success {
		label = "success"
	}
	m.outcomesTotal.WithLabelValues(museum, label).Inc()
	m.requestLatency.WithLabelValues(label).Observe(seconds)
}

// ObserveBatch records a finished batch. result is one of "complete",
// "partial", "failed" or "cancelled".
func (m *BulkMetrics) ObserveBatch(result string) {
	if m == nil {
		return
	}
	m.batchesTotal.WithLabelValues(result).Inc()
}

func (m *BulkMetrics) ObserveDuplicateBlock() {
	if m == nil {
		return
	}
	m.duplicateBlocks.Inc()
}

func (m *BulkMetrics) ObserveSkippedLines(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.skippedLinesTotal.Add(float64(n))
}
