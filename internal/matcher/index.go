package matcher

import (
	"card-reconciliation-service/internal/models"

	"github.com/shopspring/decimal"
)

// fifo is a queue of settlement positions in arrival order
type fifo struct {
	items []int
	head  int
}

func (q *fifo) push(i int) {
	q.items = append(q.items, i)
}

func (q *fifo) pop() (int, bool) {
	if q.head >= len(q.items) {
		return 0, false
	}
	i := q.items[q.head]
	q.head++
	return i, true
}

// keyIndex maps a match key to the queue of settlement records carrying it
type keyIndex struct {
	queues map[string]*fifo
}

func newKeyIndex() *keyIndex {
	return &keyIndex{queues: make(map[string]*fifo)}
}

func (ix *keyIndex) add(key string, pos int) {
	q, ok := ix.queues[key]
	if !ok {
		q = &fifo{}
		ix.queues[key] = q
	}
	q.push(pos)
}

// take pops the oldest settlement position for key
func (ix *keyIndex) take(key string) (int, bool) {
	q, ok := ix.queues[key]
	if !ok {
		return 0, false
	}
	return q.pop()
}

// buildReferenceIndex queues every unconsumed settlement record with a
// non-empty reference number
func buildReferenceIndex(settlements []models.SettlementRecord, consumed []bool) *keyIndex {
	ix := newKeyIndex()
	for i := range settlements {
		if consumed[i] || settlements[i].ReferenceNumber == "" {
			continue
		}
		ix.add(settlements[i].ReferenceNumber, i)
	}
	return ix
}

// buildFallbackIndex queues every unconsumed settlement record that has a
// resolved branch and a usable purchase amount
func buildFallbackIndex(settlements []models.SettlementRecord, consumed []bool, precision int32) *keyIndex {
	ix := newKeyIndex()
	for i := range settlements {
		if consumed[i] {
			continue
		}
		key, ok := SettlementFallbackKey(&settlements[i], precision)
		if !ok {
			continue
		}
		ix.add(key, i)
	}
	return ix
}

// FallbackKey builds the phase 2 key: normalized branch, a separator and
// the amount rounded half away from zero to precision decimal places.
func FallbackKey(branch string, amount decimal.Decimal, precision int32) string {
	return models.NormalizeName(branch) + "|" + amount.Round(precision).StringFixed(precision)
}

// SettlementFallbackKey returns the fallback key of a settlement record, or
// false if the record cannot take part in phase 2
func SettlementFallbackKey(s *models.SettlementRecord, precision int32) (string, bool) {
	if !s.Resolved() || !s.PurchaseAmount.Valid {
		return "", false
	}
	return FallbackKey(s.Branch, s.PurchaseAmount.Value, precision), true
}

// LedgerFallbackKey returns the fallback key of a ledger record, or false if
// the record cannot take part in phase 2
func LedgerFallbackKey(l *models.LedgerRecord, precision int32) (string, bool) {
	if models.NormalizeName(l.StoreName) == "" || !l.Amount.Valid {
		return "", false
	}
	return FallbackKey(l.StoreName, l.Amount.Value, precision), true
}
