package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Counters(t *testing.T) {
	r := NewRecorder()

	r.RecordRecords("settlement", "KCB", 10)
	r.RecordRecords("settlement", "KCB", 5)
	r.RecordDropped("KCB", 2)
	r.RecordDropped("EQUITY", 0)
	r.RecordMatches(7, 2, 1)
	r.RecordUnmatchedSettlement(map[string]int{"EQUITY": 3})
	r.RecordDiagnostic("value_coercion")
	r.RecordDiagnostic("value_coercion")

	assert.Equal(t, 15.0, testutil.ToFloat64(r.recordsTotal.WithLabelValues("settlement", "KCB")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.rowsDroppedTotal.WithLabelValues("KCB")))
	assert.Equal(t, 7.0, testutil.ToFloat64(r.matchResultsTotal.WithLabelValues("EXACT")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.matchResultsTotal.WithLabelValues("FALLBACK")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.matchResultsTotal.WithLabelValues("UNMATCHED")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.unmatchedSettlement.WithLabelValues("EQUITY")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.diagnosticsTotal.WithLabelValues("value_coercion")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.rowsDroppedTotal), "zero drops add no series")
}

func TestRecorder_Gauges(t *testing.T) {
	r := NewRecorder()

	r.SetBranchNetVariance("Westlands", decimal.RequireFromString("-12.5"))
	r.SetTotal("gross_paid", decimal.RequireFromString("1000.25"))
	r.RunFinished("success", time.Unix(1700000000, 0))
	r.ObservePhase("match", 20*time.Millisecond)

	assert.Equal(t, -12.5, testutil.ToFloat64(r.branchNetVariance.WithLabelValues("Westlands")))
	assert.Equal(t, 1000.25, testutil.ToFloat64(r.totals.WithLabelValues("gross_paid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.runsTotal.WithLabelValues("success")))
	assert.Equal(t, 1700000000.0, testutil.ToFloat64(r.lastRunTimestamp))
	assert.Equal(t, 1, testutil.CollectAndCount(r.phaseDuration))
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.RecordRecords("ledger", "ASPIRE", 1)
		r.RecordMatches(1, 1, 1)
		r.RecordDiagnostic("x")
		r.ObservePhase("x", time.Second)
		r.SetTotal("x", decimal.Zero)
		r.RunFinished("success", time.Now())
	})
	assert.Nil(t, r.Registry())
	assert.NoError(t, r.WriteTextfile("/nonexistent/file.prom"))
}

func TestRecorder_WriteTextfile(t *testing.T) {
	r := NewRecorder()
	r.RecordMatches(3, 0, 1)

	path := filepath.Join(t.TempDir(), "reconciler.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.True(t, strings.Contains(out, `reconciler_match_results_total{tier="EXACT"} 3`), out)
	assert.True(t, strings.Contains(out, "# HELP reconciler_match_results_total"), out)
}
