// Package metrics tracks pipeline counters and exports them in Prometheus
// text format, the same hand-rolled exporter shape the pipeline's teacher
// codebase uses (no client library dependency).
package metrics

import (
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
)

// Metrics tracks pipeline execution statistics.
type Metrics struct {
	BatchesOpened              int64
	BatchesRetired             int64
	BatchesTimedOut            int64
	CandidatesGenerated        int64
	CandidatesDropped          int64
	VerificationsCompleted     int64
	JudgeFallbacks             int64
	SFTEmitted                 int64
	DPOEmitted                 int64
	GateRejectionsScoreDiff    int64
	GateRejectionsChosenScore  int64
	GateRejectionsVerbatim     int64
	GateRejectionsInsufficient int64
}

// PrometheusExporter exports metrics in Prometheus text format.
type PrometheusExporter struct {
	metrics *Metrics
}

// NewPrometheusExporter creates a new Prometheus exporter.
func NewPrometheusExporter(m *Metrics) *PrometheusExporter {
	return &PrometheusExporter{metrics: m}
}

// Export returns metrics in Prometheus text format.
func (e *PrometheusExporter) Export() string {
	var b strings.Builder

	opened := atomic.LoadInt64(&e.metrics.BatchesOpened)
	retired := atomic.LoadInt64(&e.metrics.BatchesRetired)
	timedOut := atomic.LoadInt64(&e.metrics.BatchesTimedOut)
	candidates := atomic.LoadInt64(&e.metrics.CandidatesGenerated)
	dropped := atomic.LoadInt64(&e.metrics.CandidatesDropped)
	verified := atomic.LoadInt64(&e.metrics.VerificationsCompleted)
	fallbacks := atomic.LoadInt64(&e.metrics.JudgeFallbacks)
	sft := atomic.LoadInt64(&e.metrics.SFTEmitted)
	dpo := atomic.LoadInt64(&e.metrics.DPOEmitted)

	// BatchesRetired counts every retirement, timed-out batches included.
	fmt.Fprintf(&b, "ragpref_batches_open %d\n", opened-retired)
	fmt.Fprintf(&b, "ragpref_batches_retired_total %d\n", retired)
	fmt.Fprintf(&b, "ragpref_batches_timed_out_total %d\n", timedOut)
	fmt.Fprintf(&b, "ragpref_candidates_generated_total %d\n", candidates)
	fmt.Fprintf(&b, "ragpref_candidates_dropped_total %d\n", dropped)
	fmt.Fprintf(&b, "ragpref_verifications_completed_total %d\n", verified)
	fmt.Fprintf(&b, "ragpref_judge_fallbacks_total %d\n", fallbacks)
	fmt.Fprintf(&b, "ragpref_sft_emitted_total %d\n", sft)
	fmt.Fprintf(&b, "ragpref_dpo_emitted_total %d\n", dpo)

	fmt.Fprintf(&b, "ragpref_gate_rejections_total{reason=\"score_diff_too_small\"} %d\n", atomic.LoadInt64(&e.metrics.GateRejectionsScoreDiff))
	fmt.Fprintf(&b, "ragpref_gate_rejections_total{reason=\"chosen_score_too_low\"} %d\n", atomic.LoadInt64(&e.metrics.GateRejectionsChosenScore))
	fmt.Fprintf(&b, "ragpref_gate_rejections_total{reason=\"chosen_is_verbatim\"} %d\n", atomic.LoadInt64(&e.metrics.GateRejectionsVerbatim))
	fmt.Fprintf(&b, "ragpref_gate_rejections_total{reason=\"insufficient_candidates\"} %d\n", atomic.LoadInt64(&e.metrics.GateRejectionsInsufficient))

	var dpoRate float64
	if retired > 0 {
		dpoRate = float64(dpo) / float64(retired)
	}
	fmt.Fprintf(&b, "ragpref_dpo_emission_rate %s\n", formatFloat(dpoRate))

	return b.String()
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (e *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, e.Export())
	})
}

// formatFloat formats a float64 for Prometheus (removes trailing zeros).
func formatFloat(f float64) string {
	if f == 0.0 {
		return "0"
	}
	s := fmt.Sprintf("%.2f", f)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	return s
}
