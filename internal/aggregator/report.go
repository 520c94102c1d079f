package aggregator

import (
	"time"

	"card-reconciliation-service/internal/matcher"
	"card-reconciliation-service/internal/models"
	"card-reconciliation-service/pkg/errors"

	"github.com/shopspring/decimal"
)

// TotalRowName labels the synthetic column-sum row
const TotalRowName = "TOTAL"

// BranchSummary is one row of the reconciliation table
type BranchSummary struct {
	BranchName         string                     `json:"branch_name"`
	LedgerTotal        decimal.Decimal            `json:"ledger_total"`
	PaidByChannel      map[string]decimal.Decimal `json:"paid_by_channel"`
	GrossPaid          decimal.Decimal            `json:"gross_paid"`
	Variance           decimal.Decimal            `json:"variance"`
	UnmatchedByChannel map[string]decimal.Decimal `json:"unmatched_by_channel"`
	UnmatchedLedger    decimal.Decimal            `json:"unmatched_ledger"`
	NetVariance        decimal.Decimal            `json:"net_variance"`

	LedgerRecords          int `json:"ledger_records"`
	SettlementRecords      int `json:"settlement_records"`
	ExcludedLedgerRows     int `json:"excluded_ledger_rows"`
	ExcludedSettlementRows int `json:"excluded_settlement_rows"`

	IsTotal bool `json:"is_total,omitempty"`
}

// UnmatchedTotal returns the sum of unmatched settlement amounts over all channels
func (b *BranchSummary) UnmatchedTotal() decimal.Decimal {
	total := decimal.Zero
	for _, v := range b.UnmatchedByChannel {
		total = total.Add(v)
	}
	return total
}

func newBranchSummary(name string, channels []string) *BranchSummary {
	b := &BranchSummary{
		BranchName:         name,
		LedgerTotal:        decimal.Zero,
		PaidByChannel:      make(map[string]decimal.Decimal, len(channels)),
		GrossPaid:          decimal.Zero,
		Variance:           decimal.Zero,
		UnmatchedByChannel: make(map[string]decimal.Decimal, len(channels)),
		UnmatchedLedger:    decimal.Zero,
		NetVariance:        decimal.Zero,
	}
	for _, ch := range channels {
		b.PaidByChannel[ch] = decimal.Zero
		b.UnmatchedByChannel[ch] = decimal.Zero
	}
	return b
}

// Stats counts records that did not land in any branch row
type Stats struct {
	Branches                int `json:"branches"`
	LedgerRecords           int `json:"ledger_records"`
	SettlementRecords       int `json:"settlement_records"`
	LedgerWithoutStore      int `json:"ledger_without_store"`
	UnresolvedSettlement    int `json:"unresolved_settlement"`
	ExcludedLedgerRows      int `json:"excluded_ledger_rows"`
	ExcludedSettlementRows  int `json:"excluded_settlement_rows"`
	UnresolvedUnmatchedRows int `json:"unresolved_unmatched_rows"`
}

// ReconciliationReport is the immutable result of a run. Branches are
// sorted by name with the TOTAL row last.
type ReconciliationReport struct {
	RunID       string    `json:"run_id"`
	GeneratedAt time.Time `json:"generated_at"`
	Channels    []string  `json:"channels"`

	Branches             []BranchSummary                      `json:"branches"`
	MatchResults         []matcher.MatchResult                `json:"match_results"`
	MatchSummary         matcher.Summary                      `json:"match_summary"`
	UnmatchedSettlement  map[string][]models.SettlementRecord `json:"unmatched_settlement"`
	UnmatchedLedger      []models.LedgerRecord                `json:"unmatched_ledger"`
	UnresolvedSettlement []models.SettlementRecord            `json:"unresolved_settlement"`
	Diagnostics          []*errors.ReconcilerError            `json:"diagnostics"`
	Stats                Stats                                `json:"stats"`
}

// Total returns the TOTAL row
func (r *ReconciliationReport) Total() BranchSummary {
	if n := len(r.Branches); n > 0 && r.Branches[n-1].IsTotal {
		return r.Branches[n-1]
	}
	return *newBranchSummary(TotalRowName, r.Channels)
}

// Rows returns the branch rows without the TOTAL row
func (r *ReconciliationReport) Rows() []BranchSummary {
	if n := len(r.Branches); n > 0 && r.Branches[n-1].IsTotal {
		return r.Branches[:n-1]
	}
	return r.Branches
}

// Branch finds a branch row by name, ignoring case and spacing
func (r *ReconciliationReport) Branch(name string) (BranchSummary, bool) {
	key := models.NormalizeName(name)
	for _, b := range r.Rows() {
		if models.NormalizeName(b.BranchName) == key {
			return b, true
		}
	}
	return BranchSummary{}, false
}

// DiagnosticsByCode counts diagnostics per error code
func (r *ReconciliationReport) DiagnosticsByCode() map[errors.ErrorCode]int {
	counts := make(map[errors.ErrorCode]int)
	for _, d := range r.Diagnostics {
		counts[d.Code]++
	}
	return counts
}
