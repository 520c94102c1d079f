package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// RecordKind distinguishes the two sides of a reconciliation
type RecordKind string

const (
	// KindSettlement is a payment channel (acquirer) settlement report
	KindSettlement RecordKind = "settlement"
	// KindLedger is the retailer's point-of-sale ledger
	KindLedger RecordKind = "ledger"
)

// String returns the string representation of RecordKind
func (k RecordKind) String() string {
	return string(k)
}

// IsValid checks if the record kind is valid
func (k RecordKind) IsValid() bool {
	return k == KindSettlement || k == KindLedger
}

// RawRow is one parsed source row keyed by source column header
type RawRow map[string]interface{}

// RawBatch is the hand-off from an ingestion adapter: every row of one
// source file, tagged with the channel it was reported by.
type RawBatch struct {
	Channel string   `json:"channel"`
	Source  string   `json:"source"`
	Columns []string `json:"columns"`
	Rows    []RawRow `json:"rows"`
}

// Len returns the number of rows in the batch
func (b *RawBatch) Len() int {
	return len(b.Rows)
}

// SettlementRecord represents one transaction reported by a payment channel
type SettlementRecord struct {
	ID               string          `json:"id"`
	Row              int             `json:"row"`
	Channel          string          `json:"channel"`
	TerminalID       string          `json:"terminal_id"`
	StoreName        string          `json:"store_name"`
	Branch           string          `json:"branch,omitempty"`
	CardNumber       string          `json:"card_number"`
	CardCheck        string          `json:"card_check"`
	TransactionTime  time.Time       `json:"transaction_time,omitempty"`
	RawTime          string          `json:"raw_time,omitempty"`
	ReferenceNumber  string          `json:"reference_number"`
	RawReference     string          `json:"raw_reference,omitempty"`
	PurchaseAmount   Amount          `json:"purchase_amount"`
	Commission       Amount          `json:"commission"`
	SettlementAmount Amount          `json:"settlement_amount"`
	CashBack         decimal.Decimal `json:"cash_back"`
}

// Resolved reports whether the record has been mapped to a branch
func (s *SettlementRecord) Resolved() bool {
	return s.Branch != ""
}

// String returns a string representation of the SettlementRecord
func (s *SettlementRecord) String() string {
	return fmt.Sprintf("Settlement{ID: %s, Ref: %s, Store: %s, Amount: %s}",
		s.ID, s.ReferenceNumber, s.StoreName, s.PurchaseAmount.String())
}

// LedgerRecord represents one expected card sale from the retailer ledger
type LedgerRecord struct {
	ID              string    `json:"id"`
	Row             int       `json:"row"`
	Channel         string    `json:"channel"`
	StoreCode       string    `json:"store_code,omitempty"`
	StoreName       string    `json:"store_name"`
	ZedDate         string    `json:"zed_date,omitempty"`
	TillID          string    `json:"till_id,omitempty"`
	SessionID       string    `json:"session_id,omitempty"`
	ReceiptID       string    `json:"receipt_id,omitempty"`
	CustomerName    string    `json:"customer_name,omitempty"`
	CardType        string    `json:"card_type,omitempty"`
	CardNumber      string    `json:"card_number"`
	CardCheck       string    `json:"card_check"`
	Amount          Amount    `json:"amount"`
	ReferenceNumber string    `json:"reference_number"`
	RawReference    string    `json:"raw_reference,omitempty"`
	TransactionTime time.Time `json:"transaction_time,omitempty"`
	RawTime         string    `json:"raw_time,omitempty"`
}

// String returns a string representation of the LedgerRecord
func (l *LedgerRecord) String() string {
	return fmt.Sprintf("Ledger{ID: %s, Ref: %s, Store: %s, Amount: %s}",
		l.ID, l.ReferenceNumber, l.StoreName, l.Amount.String())
}

// RecordID builds the identifier of a record: channel and 1-based data row.
func RecordID(channel string, row int) string {
	return fmt.Sprintf("%s:%d", channel, row)
}
