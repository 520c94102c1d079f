// Package normalizer turns raw ingestion rows into canonical settlement and
// ledger records.
//
// Each channel declares a ChannelSchema mapping canonical fields onto its
// source columns. A batch whose columns cannot satisfy the schema is
// rejected as a whole; problems confined to single cells or rows are
// returned as diagnostics next to the records.
//
// Example usage:
//
//	n := normalizer.New(normalizer.DefaultRegistry())
//	canonical, err := n.Normalize(batch)
//	if err != nil {
//		return err // schema problems reject the channel
//	}
//	for _, d := range canonical.Diagnostics {
//		log.Warn(d.Error())
//	}
package normalizer

import (
	"strings"
	"time"

	"card-reconciliation-service/internal/models"
	"card-reconciliation-service/pkg/errors"
	"card-reconciliation-service/pkg/logger"

	"github.com/shopspring/decimal"
)

// Stats counts what happened to the rows of one batch
type Stats struct {
	Rows        int `json:"rows"`
	Kept        int `json:"kept"`
	Dropped     int `json:"dropped"`
	Diagnostics int `json:"diagnostics"`
}

// Canonical is the result of normalizing one batch
type Canonical struct {
	Channel     string                    `json:"channel"`
	Kind        models.RecordKind         `json:"kind"`
	Source      string                    `json:"source"`
	Settlements []models.SettlementRecord `json:"settlements,omitempty"`
	Ledger      []models.LedgerRecord     `json:"ledger,omitempty"`
	Diagnostics []*errors.ReconcilerError `json:"diagnostics,omitempty"`
	Stats       Stats                     `json:"stats"`
}

// Normalizer converts raw batches using a schema registry
type Normalizer struct {
	registry *Registry
	logger   logger.Logger
}

// New creates a normalizer; a nil registry means the built-in schemas
func New(registry *Registry) *Normalizer {
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Normalizer{
		registry: registry,
		logger:   logger.GetGlobalLogger().WithComponent("normalizer"),
	}
}

// Registry returns the schema registry in use
func (n *Normalizer) Registry() *Registry {
	return n.registry
}

// Normalize maps every row of batch to a canonical record. The batch is
// not modified.
func (n *Normalizer) Normalize(batch *models.RawBatch) (*Canonical, error) {
	if batch == nil {
		return nil, errors.InternalError(errors.CodeUnexpectedError, "normalize", nil).
			WithSuggestion("a nil batch was passed to the normalizer")
	}

	schema, err := n.registry.Lookup(batch.Channel)
	if err != nil {
		return nil, err
	}

	columns, err := n.resolveColumns(schema, batch)
	if err != nil {
		return nil, err
	}

	rb := &rowBuilder{
		schema:  schema,
		columns: columns,
		seen:    make(map[string]struct{}),
	}

	out := &Canonical{
		Channel: schema.Channel,
		Kind:    schema.Kind,
		Source:  batch.Source,
	}

	for i, row := range batch.Rows {
		rb.reset(i+1, row)

		switch schema.Kind {
		case models.KindSettlement:
			if rec, ok := rb.settlement(); ok {
				out.Settlements = append(out.Settlements, rec)
			}
		case models.KindLedger:
			if rec, ok := rb.ledger(); ok {
				out.Ledger = append(out.Ledger, rec)
			}
		}
	}

	out.Diagnostics = rb.diagnostics
	out.Stats = Stats{
		Rows:        batch.Len(),
		Kept:        len(out.Settlements) + len(out.Ledger),
		Dropped:     rb.dropped,
		Diagnostics: len(rb.diagnostics),
	}

	n.logger.WithFields(logger.Fields{
		"channel":     out.Channel,
		"kind":        out.Kind,
		"source":      out.Source,
		"rows":        out.Stats.Rows,
		"kept":        out.Stats.Kept,
		"dropped":     out.Stats.Dropped,
		"diagnostics": out.Stats.Diagnostics,
	}).Info("Normalized batch")

	return out, nil
}

// Normalize converts one batch with the given registry
func Normalize(batch *models.RawBatch, registry *Registry) (*Canonical, error) {
	return New(registry).Normalize(batch)
}

// resolveColumns finds the source header for every mapped field. Header
// comparison ignores case and surrounding whitespace.
func (n *Normalizer) resolveColumns(schema *ChannelSchema, batch *models.RawBatch) (map[Field]string, error) {
	headers := make(map[string]string, len(batch.Columns))
	for _, col := range batch.Columns {
		key := models.NormalizeName(col)
		if _, dup := headers[key]; !dup {
			headers[key] = col
		}
	}

	resolved := make(map[Field]string, len(schema.Fields))
	for _, field := range schema.SortedFields() {
		source := schema.Fields[field]
		header, ok := headers[models.NormalizeName(source)]
		if !ok {
			if IsRequired(schema.Kind, field) || (field == FieldTerminalID && schema.RequireTerminalID) {
				return nil, errors.SchemaError(errors.CodeMissingField, schema.Channel, string(field)).
					WithContext("column", source).
					WithContext("source", batch.Source)
			}
			n.logger.WithFields(logger.Fields{
				"channel": schema.Channel,
				"field":   field,
				"column":  source,
			}).Warn("Optional column not present in source; treating as blank")
			continue
		}
		resolved[field] = header
	}

	return resolved, nil
}

// rowBuilder carries per-batch state while rows are converted
type rowBuilder struct {
	schema      *ChannelSchema
	columns     map[Field]string
	seen        map[string]struct{}
	diagnostics []*errors.ReconcilerError
	dropped     int

	row int
	raw models.RawRow
}

func (b *rowBuilder) reset(row int, raw models.RawRow) {
	b.row = row
	b.raw = raw
}

func (b *rowBuilder) warn(err *errors.ReconcilerError) {
	b.diagnostics = append(b.diagnostics, err)
}

func (b *rowBuilder) drop(reason string) {
	b.dropped++
	b.warn(errors.RowDropped(b.schema.Channel, b.row, reason))
}

func (b *rowBuilder) cell(field Field) interface{} {
	header, ok := b.columns[field]
	if !ok {
		return nil
	}
	return b.raw[header]
}

// text returns the trimmed string form of a field, flagging cells that
// cannot be represented as text
func (b *rowBuilder) text(field Field) string {
	v := b.cell(field)
	s, err := models.CellString(v)
	if err != nil {
		b.warn(errors.ValueCoercionWarning(b.schema.Channel, b.row, string(field), v))
		return ""
	}
	return s
}

func (b *rowBuilder) reference() (normalized, raw string) {
	v := b.cell(FieldReferenceNumber)
	s, err := models.CellReference(v)
	if err != nil {
		b.warn(errors.ValueCoercionWarning(b.schema.Channel, b.row, string(FieldReferenceNumber), v))
		return "", ""
	}
	return models.NormalizeReference(s), s
}

func (b *rowBuilder) amount(field Field) models.Amount {
	var a models.Amount
	if IsRequired(b.schema.Kind, field) {
		a = models.ParseAmount(b.cell(field))
	} else {
		a = models.ParseOptionalAmount(b.cell(field))
	}
	if !a.Valid {
		b.warn(errors.ValueCoercionWarning(b.schema.Channel, b.row, string(field), a.Raw))
	}
	return a
}

// transactionTime parses the time cell. Blank is not an error.
func (b *rowBuilder) transactionTime() (string, time.Time) {
	raw := b.text(FieldTransactionTime)
	if raw == "" {
		return raw, time.Time{}
	}
	t, err := models.ParseTimeWithFormats(raw, b.schema.TimeLayouts...)
	if err != nil {
		b.warn(errors.ValueCoercionWarning(b.schema.Channel, b.row, string(FieldTransactionTime), raw))
		return raw, time.Time{}
	}
	return raw, t
}

// admit applies the row-level drop policies. It returns false when the
// row must not produce a record.
func (b *rowBuilder) admit(card, terminal string) bool {
	if models.StripWhitespace(card) == "" {
		b.drop("blank card number")
		return false
	}

	if b.schema.RequireTerminalID && b.schema.Kind == models.KindSettlement && terminal == "" {
		b.drop("blank terminal id")
		return false
	}

	if b.schema.DropDuplicates {
		sig := b.signature()
		if _, dup := b.seen[sig]; dup {
			b.drop("duplicate row")
			return false
		}
		b.seen[sig] = struct{}{}
	}

	return true
}

// signature joins every mapped cell of the current row
func (b *rowBuilder) signature() string {
	fields := b.schema.SortedFields()
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		s, _ := models.CellReference(b.cell(f))
		parts = append(parts, s)
	}
	return strings.Join(parts, "\x1f")
}

func (b *rowBuilder) settlement() (models.SettlementRecord, bool) {
	card := b.text(FieldCardNumber)
	terminal := b.text(FieldTerminalID)
	if !b.admit(card, terminal) {
		return models.SettlementRecord{}, false
	}

	ref, rawRef := b.reference()
	rawTime, ts := b.transactionTime()
	purchase := b.amount(FieldPurchaseAmount)

	rec := models.SettlementRecord{
		ID:               models.RecordID(b.schema.Channel, b.row),
		Row:              b.row,
		Channel:          b.schema.Channel,
		TerminalID:       terminal,
		StoreName:        b.text(FieldStoreName),
		CardNumber:       card,
		CardCheck:        models.CardCheck(card),
		TransactionTime:  ts,
		RawTime:          rawTime,
		ReferenceNumber:  ref,
		RawReference:     rawRef,
		PurchaseAmount:   purchase,
		Commission:       b.amount(FieldCommission),
		SettlementAmount: b.amount(FieldSettlementAmount),
		CashBack:         decimal.Zero,
	}

	if b.schema.RefundsAsNegative && purchase.Valid && purchase.Value.IsNegative() {
		rec.CashBack = purchase.Value.Neg()
	}

	return rec, true
}

func (b *rowBuilder) ledger() (models.LedgerRecord, bool) {
	card := b.text(FieldCardNumber)
	if !b.admit(card, "") {
		return models.LedgerRecord{}, false
	}

	ref, rawRef := b.reference()
	rawTime, ts := b.transactionTime()

	rec := models.LedgerRecord{
		ID:              models.RecordID(b.schema.Channel, b.row),
		Row:             b.row,
		Channel:         b.schema.Channel,
		StoreCode:       b.text(FieldStoreCode),
		StoreName:       b.text(FieldStoreName),
		ZedDate:         b.text(FieldZedDate),
		TillID:          b.text(FieldTillID),
		SessionID:       b.text(FieldSessionID),
		ReceiptID:       b.text(FieldReceiptID),
		CustomerName:    b.text(FieldCustomerName),
		CardType:        b.text(FieldCardType),
		CardNumber:      card,
		CardCheck:       models.CardCheck(card),
		Amount:          b.amount(FieldAmount),
		ReferenceNumber: ref,
		RawReference:    rawRef,
		TransactionTime: ts,
		RawTime:         rawTime,
	}

	if rec.StoreName == "" {
		b.warn(errors.MissingStoreWarning(b.schema.Channel, b.row))
	}

	return rec, true
}
