// Package aggregator builds the per-branch reconciliation table from
// canonical records and the matcher's output.
package aggregator

import (
	"fmt"
	"sort"
	"strings"

	"card-reconciliation-service/internal/matcher"
	"card-reconciliation-service/internal/models"
	"card-reconciliation-service/pkg/errors"
	"card-reconciliation-service/pkg/logger"

	"github.com/shopspring/decimal"
)

// Tolerance is the largest absolute difference allowed between a TOTAL
// row field and the sum of that field over the branch rows
var Tolerance = decimal.New(1, -6)

// Aggregator groups records by branch
type Aggregator struct {
	channels []string
	logger   logger.Logger
}

// New creates an aggregator. channels fixes the settlement channel columns
// and their order; channels seen only in the data are appended sorted.
func New(channels ...string) *Aggregator {
	return &Aggregator{
		channels: channels,
		logger:   logger.GetGlobalLogger().WithComponent("aggregator"),
	}
}

// Aggregate builds the report from every settlement record (resolved or
// not), every ledger record and the match result over them.
func (a *Aggregator) Aggregate(settlements []models.SettlementRecord, ledger []models.LedgerRecord, result *matcher.Result) (*ReconciliationReport, error) {
	if result == nil {
		return nil, errors.InternalError(errors.CodeUnexpectedError, "aggregation", fmt.Errorf("match result is nil"))
	}

	channels := a.columnOrder(settlements)
	t := newTable(channels)

	report := &ReconciliationReport{
		Channels:             channels,
		MatchResults:         result.Results,
		MatchSummary:         result.Summary,
		UnmatchedSettlement:  result.UnmatchedSettlement,
		UnmatchedLedger:      result.UnmatchedLedger,
		UnresolvedSettlement: make([]models.SettlementRecord, 0),
		Diagnostics:          make([]*errors.ReconcilerError, 0),
	}
	stats := &report.Stats
	stats.LedgerRecords = len(ledger)
	stats.SettlementRecords = len(settlements)

	for i := range ledger {
		l := &ledger[i]
		row := t.row(l.StoreName)
		if row == nil {
			stats.LedgerWithoutStore++
			continue
		}
		row.LedgerRecords++
		if !l.Amount.Valid {
			row.ExcludedLedgerRows++
			stats.ExcludedLedgerRows++
			continue
		}
		row.LedgerTotal = row.LedgerTotal.Add(l.Amount.Value)
	}

	for i := range settlements {
		s := &settlements[i]
		if !s.Resolved() {
			report.UnresolvedSettlement = append(report.UnresolvedSettlement, *s)
			stats.UnresolvedSettlement++
			continue
		}
		row := t.row(s.Branch)
		row.SettlementRecords++
		if !s.PurchaseAmount.Valid {
			row.ExcludedSettlementRows++
			stats.ExcludedSettlementRows++
			continue
		}
		row.PaidByChannel[s.Channel] = row.PaidByChannel[s.Channel].Add(s.PurchaseAmount.Value)
	}

	for _, ch := range result.Channels() {
		for _, s := range result.UnmatchedSettlement[ch] {
			if !s.Resolved() {
				stats.UnresolvedUnmatchedRows++
				continue
			}
			if !s.PurchaseAmount.Valid {
				continue
			}
			row := t.row(s.Branch)
			row.UnmatchedByChannel[s.Channel] = row.UnmatchedByChannel[s.Channel].Add(s.PurchaseAmount.Value)
		}
	}

	for _, l := range result.UnmatchedLedger {
		row := t.row(l.StoreName)
		if row == nil || !l.Amount.Valid {
			continue
		}
		row.UnmatchedLedger = row.UnmatchedLedger.Add(l.Amount.Value)
	}

	rows := t.sorted()
	for i := range rows {
		finishRow(&rows[i], channels)
	}
	stats.Branches = len(rows)

	report.Branches = append(rows, totalRow(rows, channels))

	if err := VerifyTotals(report.Branches); err != nil {
		return nil, err
	}

	a.logger.WithFields(logger.Fields{
		"branches":              stats.Branches,
		"channels":              channels,
		"unresolved_settlement": stats.UnresolvedSettlement,
		"ledger_without_store":  stats.LedgerWithoutStore,
		"excluded_ledger":       stats.ExcludedLedgerRows,
		"excluded_settlement":   stats.ExcludedSettlementRows,
	}).Info("Aggregation complete")

	return report, nil
}

// Aggregate runs an aggregator with channel columns taken from the data
func Aggregate(settlements []models.SettlementRecord, ledger []models.LedgerRecord, result *matcher.Result) (*ReconciliationReport, error) {
	return New().Aggregate(settlements, ledger, result)
}

func (a *Aggregator) columnOrder(settlements []models.SettlementRecord) []string {
	seen := make(map[string]bool)
	var channels []string
	for _, ch := range a.channels {
		if !seen[ch] {
			seen[ch] = true
			channels = append(channels, ch)
		}
	}

	var extra []string
	for i := range settlements {
		ch := settlements[i].Channel
		if !seen[ch] {
			seen[ch] = true
			extra = append(extra, ch)
		}
	}
	sort.Strings(extra)
	return append(channels, extra...)
}

// finishRow fills the derived columns of a branch row
func finishRow(b *BranchSummary, channels []string) {
	b.GrossPaid = decimal.Zero
	for _, ch := range channels {
		b.GrossPaid = b.GrossPaid.Add(b.PaidByChannel[ch])
	}
	b.Variance = b.GrossPaid.Sub(b.LedgerTotal)
	b.NetVariance = b.Variance.Sub(b.UnmatchedTotal()).Add(b.UnmatchedLedger)
}

// totalRow sums every column over rows independently
func totalRow(rows []BranchSummary, channels []string) BranchSummary {
	total := newBranchSummary(TotalRowName, channels)
	total.IsTotal = true

	for _, r := range rows {
		total.LedgerTotal = total.LedgerTotal.Add(r.LedgerTotal)
		total.GrossPaid = total.GrossPaid.Add(r.GrossPaid)
		total.Variance = total.Variance.Add(r.Variance)
		total.UnmatchedLedger = total.UnmatchedLedger.Add(r.UnmatchedLedger)
		total.NetVariance = total.NetVariance.Add(r.NetVariance)
		for _, ch := range channels {
			total.PaidByChannel[ch] = total.PaidByChannel[ch].Add(r.PaidByChannel[ch])
			total.UnmatchedByChannel[ch] = total.UnmatchedByChannel[ch].Add(r.UnmatchedByChannel[ch])
		}
		total.LedgerRecords += r.LedgerRecords
		total.SettlementRecords += r.SettlementRecords
		total.ExcludedLedgerRows += r.ExcludedLedgerRows
		total.ExcludedSettlementRows += r.ExcludedSettlementRows
	}

	return *total
}

// VerifyTotals checks that the last row is a TOTAL row equal, field by
// field, to the sum of the rows before it
func VerifyTotals(rows []BranchSummary) error {
	if len(rows) == 0 || !rows[len(rows)-1].IsTotal {
		return errors.InternalError(errors.CodeUnexpectedError, "total row verification",
			fmt.Errorf("report has no TOTAL row"))
	}

	total := rows[len(rows)-1]
	branches := rows[:len(rows)-1]

	check := func(field string, got decimal.Decimal, pick func(b *BranchSummary) decimal.Decimal) error {
		sum := decimal.Zero
		for i := range branches {
			sum = sum.Add(pick(&branches[i]))
		}
		if got.Sub(sum).Abs().GreaterThan(Tolerance) {
			return errors.InternalError(errors.CodeUnexpectedError, "total row verification",
				fmt.Errorf("TOTAL %s is %s but branch rows sum to %s", field, got, sum)).
				WithContext("field", field)
		}
		return nil
	}

	fields := []struct {
		name string
		pick func(b *BranchSummary) decimal.Decimal
	}{
		{"ledger_total", func(b *BranchSummary) decimal.Decimal { return b.LedgerTotal }},
		{"gross_paid", func(b *BranchSummary) decimal.Decimal { return b.GrossPaid }},
		{"variance", func(b *BranchSummary) decimal.Decimal { return b.Variance }},
		{"unmatched_ledger", func(b *BranchSummary) decimal.Decimal { return b.UnmatchedLedger }},
		{"net_variance", func(b *BranchSummary) decimal.Decimal { return b.NetVariance }},
	}
	for _, f := range fields {
		if err := check(f.name, f.pick(&total), f.pick); err != nil {
			return err
		}
	}

	for ch := range total.PaidByChannel {
		ch := ch
		if err := check("paid_by_channel."+ch, total.PaidByChannel[ch],
			func(b *BranchSummary) decimal.Decimal { return b.PaidByChannel[ch] }); err != nil {
			return err
		}
	}
	for ch := range total.UnmatchedByChannel {
		ch := ch
		if err := check("unmatched_by_channel."+ch, total.UnmatchedByChannel[ch],
			func(b *BranchSummary) decimal.Decimal { return b.UnmatchedByChannel[ch] }); err != nil {
			return err
		}
	}

	return nil
}

// table groups rows by normalized branch name and remembers the first
// spelling seen for display
type table struct {
	channels []string
	rows     map[string]*BranchSummary
}

func newTable(channels []string) *table {
	return &table{channels: channels, rows: make(map[string]*BranchSummary)}
}

// row returns the row for name, creating it on first sight. A blank name
// has no row.
func (t *table) row(name string) *BranchSummary {
	key := models.NormalizeName(name)
	if key == "" {
		return nil
	}
	if r, ok := t.rows[key]; ok {
		return r
	}
	r := newBranchSummary(displayName(name), t.channels)
	t.rows[key] = r
	return r
}

func (t *table) sorted() []BranchSummary {
	keys := make([]string, 0, len(t.rows))
	for k := range t.rows {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]BranchSummary, 0, len(keys))
	for _, k := range keys {
		out = append(out, *t.rows[k])
	}
	return out
}

// displayName keeps the caller's spelling with spacing tidied
func displayName(name string) string {
	return strings.Join(strings.Fields(name), " ")
}
