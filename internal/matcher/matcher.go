package matcher

import (
	"fmt"
	"sort"

	"card-reconciliation-service/internal/models"
	"card-reconciliation-service/pkg/errors"
	"card-reconciliation-service/pkg/logger"
)

// MatchResult links one ledger record to the settlement record it was
// paired with, if any
type MatchResult struct {
	LedgerID     string `json:"ledger_id"`
	SettlementID string `json:"settlement_id,omitempty"`
	Tier         Tier   `json:"tier"`
	Key          string `json:"key,omitempty"`
}

// Summary provides aggregate statistics about one matching run
type Summary struct {
	LedgerRecords       int            `json:"ledger_records"`
	SettlementRecords   int            `json:"settlement_records"`
	Exact               int            `json:"exact"`
	Fallback            int            `json:"fallback"`
	Unmatched           int            `json:"unmatched"`
	UnmatchedSettlement map[string]int `json:"unmatched_settlement"`
}

// Matched returns the number of ledger records paired in either phase
func (s Summary) Matched() int {
	return s.Exact + s.Fallback
}

// Result is the outcome of a matching run. Results follow ledger input
// order; unmatched settlement records follow settlement input order.
type Result struct {
	Results             []MatchResult                        `json:"results"`
	UnmatchedSettlement map[string][]models.SettlementRecord `json:"unmatched_settlement"`
	UnmatchedLedger     []models.LedgerRecord                `json:"unmatched_ledger"`
	Summary             Summary                              `json:"summary"`

	consumed map[string]bool
	byLedger map[string]int
}

// IsConsumed reports whether the record with id was paired
func (r *Result) IsConsumed(id string) bool {
	return r.consumed[id]
}

// ForLedger returns the result for a ledger record id
func (r *Result) ForLedger(id string) (MatchResult, bool) {
	i, ok := r.byLedger[id]
	if !ok {
		return MatchResult{}, false
	}
	return r.Results[i], true
}

// Channels returns the channels with unmatched settlement records, sorted
func (r *Result) Channels() []string {
	channels := make([]string, 0, len(r.UnmatchedSettlement))
	for ch := range r.UnmatchedSettlement {
		channels = append(channels, ch)
	}
	sort.Strings(channels)
	return channels
}

// Matcher runs the two-phase matching algorithm. It keeps no state between
// calls, so one Matcher may serve many runs.
type Matcher struct {
	config *MatchingConfig
	logger logger.Logger
}

// NewMatcher creates a matcher; nil config means the defaults
func NewMatcher(config *MatchingConfig) *Matcher {
	if config == nil {
		config = DefaultMatchingConfig()
	}
	return &Matcher{
		config: config,
		logger: logger.GetGlobalLogger().WithComponent("matcher"),
	}
}

// Match pairs ledger records with settlement records. The inputs are not
// modified; consumption is tracked on the matcher's own state.
func (m *Matcher) Match(settlements []models.SettlementRecord, ledger []models.LedgerRecord) (*Result, error) {
	if err := m.config.Validate(); err != nil {
		return nil, err
	}
	if err := checkUniqueIDs(settlements, ledger); err != nil {
		return nil, err
	}

	run := &matchRun{
		settlements:        settlements,
		ledger:             ledger,
		settlementConsumed: make([]bool, len(settlements)),
		results:            make([]MatchResult, len(ledger)),
		done:               make([]bool, len(ledger)),
	}

	exact := run.exactPhase()
	m.logger.WithFields(logger.Fields{
		"phase":   "exact",
		"matched": exact,
	}).Debug("Reference matching complete")

	fallback := 0
	if m.config.EnableFallback {
		fallback = run.fallbackPhase(m.config.FallbackPrecision)
		m.logger.WithFields(logger.Fields{
			"phase":   "fallback",
			"matched": fallback,
		}).Debug("Fallback matching complete")
	}

	result := run.finish()

	if err := result.Verify(settlements, ledger); err != nil {
		m.logger.WithError(err).Error("Matcher invariant violated")
		return nil, err
	}

	m.logger.WithFields(logger.Fields{
		"ledger":      result.Summary.LedgerRecords,
		"settlement":  result.Summary.SettlementRecords,
		"exact":       result.Summary.Exact,
		"fallback":    result.Summary.Fallback,
		"unmatched":   result.Summary.Unmatched,
		"left_over":   result.Summary.UnmatchedSettlement,
		"fallback_on": m.config.EnableFallback,
	}).Info("Matching complete")

	return result, nil
}

// Match runs the default matcher
func Match(settlements []models.SettlementRecord, ledger []models.LedgerRecord) (*Result, error) {
	return NewMatcher(nil).Match(settlements, ledger)
}

// matchRun owns the consumption state of a single Match call
type matchRun struct {
	settlements        []models.SettlementRecord
	ledger             []models.LedgerRecord
	settlementConsumed []bool
	results            []MatchResult
	done               []bool
}

func (r *matchRun) pair(li, si int, tier Tier, key string) {
	r.settlementConsumed[si] = true
	r.done[li] = true
	r.results[li] = MatchResult{
		LedgerID:     r.ledger[li].ID,
		SettlementID: r.settlements[si].ID,
		Tier:         tier,
		Key:          key,
	}
}

func (r *matchRun) exactPhase() int {
	ix := buildReferenceIndex(r.settlements, r.settlementConsumed)
	matched := 0
	for li := range r.ledger {
		ref := r.ledger[li].ReferenceNumber
		if ref == "" {
			continue
		}
		if si, ok := ix.take(ref); ok {
			r.pair(li, si, TierExact, ref)
			matched++
		}
	}
	return matched
}

func (r *matchRun) fallbackPhase(precision int32) int {
	ix := buildFallbackIndex(r.settlements, r.settlementConsumed, precision)
	matched := 0
	for li := range r.ledger {
		if r.done[li] {
			continue
		}
		key, ok := LedgerFallbackKey(&r.ledger[li], precision)
		if !ok {
			continue
		}
		if si, ok := ix.take(key); ok {
			r.pair(li, si, TierFallback, key)
			matched++
		}
	}
	return matched
}

func (r *matchRun) finish() *Result {
	res := &Result{
		Results:             r.results,
		UnmatchedSettlement: make(map[string][]models.SettlementRecord),
		UnmatchedLedger:     make([]models.LedgerRecord, 0),
		consumed:            make(map[string]bool),
		byLedger:            make(map[string]int, len(r.ledger)),
		Summary: Summary{
			LedgerRecords:       len(r.ledger),
			SettlementRecords:   len(r.settlements),
			UnmatchedSettlement: make(map[string]int),
		},
	}

	for li := range r.ledger {
		id := r.ledger[li].ID
		res.byLedger[id] = li
		if !r.done[li] {
			res.Results[li] = MatchResult{LedgerID: id, Tier: TierUnmatched}
			res.UnmatchedLedger = append(res.UnmatchedLedger, r.ledger[li])
			res.Summary.Unmatched++
			continue
		}
		res.consumed[id] = true
		switch res.Results[li].Tier {
		case TierExact:
			res.Summary.Exact++
		case TierFallback:
			res.Summary.Fallback++
		}
	}

	for si := range r.settlements {
		s := r.settlements[si]
		if r.settlementConsumed[si] {
			res.consumed[s.ID] = true
			continue
		}
		res.UnmatchedSettlement[s.Channel] = append(res.UnmatchedSettlement[s.Channel], s)
		res.Summary.UnmatchedSettlement[s.Channel]++
	}

	return res
}

// Verify checks the record-loss and one-to-one invariants of r against the
// inputs it was built from
func (r *Result) Verify(settlements []models.SettlementRecord, ledger []models.LedgerRecord) error {
	if len(r.Results) != len(ledger) {
		return errors.RecordLossViolation(len(ledger), len(r.Results), "match results vs ledger records")
	}

	seenLedger := make(map[string]bool, len(ledger))
	usedSettlement := make(map[string]bool)
	for i, mr := range r.Results {
		if mr.LedgerID != ledger[i].ID {
			return errors.RecordLossViolation(len(ledger), i,
				fmt.Sprintf("result %d belongs to %s, expected %s", i, mr.LedgerID, ledger[i].ID))
		}
		if seenLedger[mr.LedgerID] {
			return errors.RecordLossViolation(len(ledger), len(r.Results),
				fmt.Sprintf("ledger record %s has more than one result", mr.LedgerID))
		}
		seenLedger[mr.LedgerID] = true

		if mr.Tier.IsMatched() {
			if mr.SettlementID == "" {
				return errors.RecordLossViolation(1, 0,
					fmt.Sprintf("%s result for %s has no settlement record", mr.Tier, mr.LedgerID))
			}
			if usedSettlement[mr.SettlementID] {
				return errors.RecordLossViolation(1, 2,
					fmt.Sprintf("settlement record %s consumed more than once", mr.SettlementID))
			}
			usedSettlement[mr.SettlementID] = true
		}
	}

	leftover := 0
	for _, recs := range r.UnmatchedSettlement {
		for _, s := range recs {
			if usedSettlement[s.ID] {
				return errors.RecordLossViolation(1, 2,
					fmt.Sprintf("settlement record %s is both matched and unmatched", s.ID))
			}
			leftover++
		}
	}

	if len(usedSettlement)+leftover != len(settlements) {
		return errors.RecordLossViolation(len(settlements), len(usedSettlement)+leftover,
			"consumed plus unmatched settlement records vs settlement records")
	}

	return nil
}

func checkUniqueIDs(settlements []models.SettlementRecord, ledger []models.LedgerRecord) error {
	seen := make(map[string]bool, len(settlements)+len(ledger))
	for i := range settlements {
		id := settlements[i].ID
		if seen[id] {
			return errors.InternalError(errors.CodeDuplicateRecordID, "matching", nil).
				WithContext("record_id", id)
		}
		seen[id] = true
	}
	for i := range ledger {
		id := ledger[i].ID
		if seen[id] {
			return errors.InternalError(errors.CodeDuplicateRecordID, "matching", nil).
				WithContext("record_id", id)
		}
		seen[id] = true
	}
	return nil
}
