// Package metrics records reconciliation run statistics as Prometheus
// metrics on a private registry. A batch run has no scrape endpoint, so
// the registry is exported as a node_exporter textfile.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

const namespace = "reconciler"

// Recorder holds the run metrics. A nil *Recorder ignores every call.
type Recorder struct {
	registry *prometheus.Registry

	recordsTotal        *prometheus.CounterVec
	rowsDroppedTotal    *prometheus.CounterVec
	matchResultsTotal   *prometheus.CounterVec
	unmatchedSettlement *prometheus.CounterVec
	diagnosticsTotal    *prometheus.CounterVec
	phaseDuration       *prometheus.HistogramVec
	branchNetVariance   *prometheus.GaugeVec
	totals              *prometheus.GaugeVec
	runsTotal           *prometheus.CounterVec
	lastRunTimestamp    prometheus.Gauge
}

// NewRecorder creates a recorder with its own registry
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,

		recordsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Canonical records produced by the normalizer",
		}, []string{
			"kind",    // settlement, ledger
			"channel", // KCB, EQUITY, ASPIRE...
		}),

		rowsDroppedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_dropped_total",
			Help:      "Source rows dropped during normalization",
		}, []string{"channel"}),

		matchResultsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "match_results_total",
			Help:      "Ledger match results by tier",
		}, []string{"tier"}),

		unmatchedSettlement: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unmatched_settlement_total",
			Help:      "Settlement records left unconsumed after matching",
		}, []string{"channel"}),

		diagnosticsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diagnostics_total",
			Help:      "Non-fatal row anomalies collected during the run",
		}, []string{"code"}),

		phaseDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "phase_duration_seconds",
			Help:      "Time spent in each pipeline phase",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}, []string{"phase"}),

		branchNetVariance: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "branch_net_variance",
			Help:      "Net variance per branch for the last run",
		}, []string{"branch"}),

		totals: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "total_amount",
			Help:      "TOTAL row amounts for the last run",
		}, []string{"column"}),

		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Reconciliation runs by outcome",
		}, []string{"status"}),

		lastRunTimestamp: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished",
		}),
	}
}

// Registry returns the private registry
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// RecordRecords counts canonical records of one channel
func (r *Recorder) RecordRecords(kind, channel string, n int) {
	if r == nil {
		return
	}
	r.recordsTotal.WithLabelValues(kind, channel).Add(float64(n))
}

// RecordDropped counts rows dropped from one channel
func (r *Recorder) RecordDropped(channel string, n int) {
	if r == nil || n == 0 {
		return
	}
	r.rowsDroppedTotal.WithLabelValues(channel).Add(float64(n))
}

// RecordMatches counts match results per tier
func (r *Recorder) RecordMatches(exact, fallback, unmatched int) {
	if r == nil {
		return
	}
	r.matchResultsTotal.WithLabelValues("EXACT").Add(float64(exact))
	r.matchResultsTotal.WithLabelValues("FALLBACK").Add(float64(fallback))
	r.matchResultsTotal.WithLabelValues("UNMATCHED").Add(float64(unmatched))
}

// RecordUnmatchedSettlement counts leftover settlement records per channel
func (r *Recorder) RecordUnmatchedSettlement(byChannel map[string]int) {
	if r == nil {
		return
	}
	for ch, n := range byChannel {
		r.unmatchedSettlement.WithLabelValues(ch).Add(float64(n))
	}
}

// RecordDiagnostic counts one diagnostic by code
func (r *Recorder) RecordDiagnostic(code string) {
	if r == nil {
		return
	}
	r.diagnosticsTotal.WithLabelValues(code).Inc()
}

// ObservePhase records how long a phase took
func (r *Recorder) ObservePhase(phase string, d time.Duration) {
	if r == nil {
		return
	}
	r.phaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// SetBranchNetVariance publishes one branch's net variance
func (r *Recorder) SetBranchNetVariance(branch string, v decimal.Decimal) {
	if r == nil {
		return
	}
	r.branchNetVariance.WithLabelValues(branch).Set(v.InexactFloat64())
}

// SetTotal publishes one TOTAL row column
func (r *Recorder) SetTotal(column string, v decimal.Decimal) {
	if r == nil {
		return
	}
	r.totals.WithLabelValues(column).Set(v.InexactFloat64())
}

// RunFinished counts a run and stamps its completion time
func (r *Recorder) RunFinished(status string, at time.Time) {
	if r == nil {
		return
	}
	r.runsTotal.WithLabelValues(status).Inc()
	r.lastRunTimestamp.Set(float64(at.Unix()))
}

// WriteTextfile writes the registry in text exposition format to path
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.registry)
}
