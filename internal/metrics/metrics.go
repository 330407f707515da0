// Package metrics registers the supervisor's Prometheus collectors
// and serves them over HTTP, grounded on SPEC_FULL.md's domain-stack
// wiring for github.com/prometheus/client_golang: session and
// approval collectors exposed through Handler, which cmd/agentd serves
// on its own /metrics listener (separate from the approval callback
// bridge).
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder owns the supervisor's metric collectors. A nil *Recorder is
// safe to call every method on (every method returns early on a nil
// receiver), so instrumentation never has to be conditional at the
// caller.
type Recorder struct {
	registry *prometheus.Registry

	activeProcesses prometheus.Gauge
	turnOutcomes    *prometheus.CounterVec
	approvals       *prometheus.CounterVec
	approvalLatency *prometheus.HistogramVec
}

// New constructs a Recorder with its own registry rather than the
// global default, so a process embedding multiple supervisors (tests,
// in particular) never collides on collector registration.
func New() *Recorder {
	r := &Recorder{registry: prometheus.NewRegistry()}

	r.activeProcesses = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "agentd",
		Name:      "sessions_active_processes",
		Help:      "Number of sessions currently backed by a live agent CLI process.",
	})
	r.turnOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentd",
		Name:      "turn_outcomes_total",
		Help:      "Count of completed turns by terminal status.",
	}, []string{"status"})
	r.approvals = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentd",
		Name:      "approvals_total",
		Help:      "Count of resolved approval questions by kind and outcome.",
	}, []string{"kind", "outcome"})
	r.approvalLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "agentd",
		Name:      "approval_resolution_seconds",
		Help:      "Time from an approval question being raised to it being resolved.",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	}, []string{"kind"})

	r.registry.MustRegister(r.activeProcesses, r.turnOutcomes, r.approvals, r.approvalLatency)
	return r
}

// Handler serves the registered collectors in the Prometheus exposition
// format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// IncActiveProcesses records a newly spawned agent CLI process.
func (r *Recorder) IncActiveProcesses() {
	if r == nil {
		return
	}
	r.activeProcesses.Inc()
}

// DecActiveProcesses records a spawned process's exit.
func (r *Recorder) DecActiveProcesses() {
	if r == nil {
		return
	}
	r.activeProcesses.Dec()
}

// RecordTurnOutcome records one turn reaching a terminal status
// ("done", "error", or "interrupted").
func (r *Recorder) RecordTurnOutcome(status string) {
	if r == nil {
		return
	}
	r.turnOutcomes.WithLabelValues(status).Inc()
}

// RecordApproval records one resolved approval question: kind is the
// closed approval.Kind vocabulary, outcome is "approved", "denied", or
// "timed_out".
func (r *Recorder) RecordApproval(kind, outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.approvals.WithLabelValues(kind, outcome).Inc()
	r.approvalLatency.WithLabelValues(kind).Observe(elapsed.Seconds())
}
