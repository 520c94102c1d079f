// Package sampledata generates synthetic ledger, settlement and branch key
// exports laid out by the channel schemas, with a known reconciliation
// outcome. It backs the CLI's sample command and end-to-end tests.
package sampledata

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"card-reconciliation-service/internal/models"
	"card-reconciliation-service/internal/normalizer"
	"card-reconciliation-service/pkg/errors"

	"github.com/shopspring/decimal"
)

// Config controls the size and shape of a generated dataset
type Config struct {
	Seed          int64    `mapstructure:"seed"`
	LedgerChannel string   `mapstructure:"ledger_channel"`
	Channels      []string `mapstructure:"channels"`
	Branches      []string `mapstructure:"branches"`
	Date          time.Time

	// Transactions is the number of ledger rows
	Transactions int `mapstructure:"transactions"`
	// FallbackRatio is the share of ledger rows exported without a reference
	FallbackRatio float64 `mapstructure:"fallback_ratio"`
	// UnmatchedRatio is the share of ledger rows no channel settled
	UnmatchedRatio float64 `mapstructure:"unmatched_ratio"`
	// UnresolvedRows are settlement rows from stores missing in the branch key
	UnresolvedRows int `mapstructure:"unresolved_rows"`

	MinAmount decimal.Decimal
	MaxAmount decimal.Decimal
}

// DefaultConfig returns a small dataset over the built-in channels
func DefaultConfig() *Config {
	return &Config{
		Seed:           1,
		LedgerChannel:  "ASPIRE",
		Channels:       []string{"KCB", "EQUITY"},
		Branches:       []string{"Westlands", "Kilimani", "Karen", "Thika Road"},
		Date:           time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Transactions:   200,
		FallbackRatio:  0.15,
		UnmatchedRatio: 0.05,
		UnresolvedRows: 5,
		MinAmount:      decimal.NewFromInt(50),
		MaxAmount:      decimal.NewFromInt(20000),
	}
}

// Validate checks the generator configuration
func (c *Config) Validate() error {
	if c.Transactions <= 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "transactions", c.Transactions,
			fmt.Errorf("must be positive"))
	}
	if c.UnresolvedRows < 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "unresolved_rows", c.UnresolvedRows,
			fmt.Errorf("must not be negative"))
	}
	if c.FallbackRatio < 0 || c.UnmatchedRatio < 0 || c.FallbackRatio+c.UnmatchedRatio > 1 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "fallback_ratio", c.FallbackRatio,
			fmt.Errorf("fallback and unmatched ratios must be non-negative and sum to at most 1"))
	}
	if len(c.Channels) == 0 {
		return errors.ConfigurationError(errors.CodeMissingConfig, "channels", nil, nil)
	}
	if len(c.Branches) == 0 {
		return errors.ConfigurationError(errors.CodeMissingConfig, "branches", nil, nil)
	}
	if !c.MinAmount.IsPositive() || c.MaxAmount.LessThan(c.MinAmount) {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "amount_range",
			fmt.Sprintf("%s..%s", c.MinAmount, c.MaxAmount), fmt.Errorf("need 0 < min <= max"))
	}
	return nil
}

// Table is one export: a header row and its data rows
type Table struct {
	Header []string
	Rows   [][]string
}

// Expected is the outcome a reconciliation of the dataset produces
type Expected struct {
	LedgerRecords        int
	SettlementRecords    int
	Exact                int
	Fallback             int
	UnmatchedLedger      int
	UnresolvedSettlement int
}

// Dataset is a generated set of exports
type Dataset struct {
	LedgerChannel string
	Ledger        *Table
	Channels      []string
	Settlements   map[string]*Table
	BranchKey     *Table
	Expected      Expected
}

// Generator builds datasets from the schemas of a registry
type Generator struct {
	config *Config
	rnd    *rand.Rand

	ledger      *normalizer.ChannelSchema
	settlements map[string]*normalizer.ChannelSchema
	nextRef     int64
}

// NewGenerator creates a generator. A nil config means DefaultConfig.
func NewGenerator(registry *normalizer.Registry, config *Config) (*Generator, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	ledger, err := registry.Lookup(config.LedgerChannel)
	if err != nil {
		return nil, err
	}
	if ledger.Kind != models.KindLedger {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "ledger_channel", config.LedgerChannel,
			fmt.Errorf("channel %s is not a ledger", config.LedgerChannel))
	}

	g := &Generator{
		config:      config,
		rnd:         rand.New(rand.NewSource(config.Seed)),
		ledger:      ledger,
		settlements: make(map[string]*normalizer.ChannelSchema, len(config.Channels)),
		nextRef:     410000000000,
	}
	for _, ch := range config.Channels {
		s, err := registry.Lookup(ch)
		if err != nil {
			return nil, err
		}
		if s.Kind != models.KindSettlement {
			return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "channels", ch,
				fmt.Errorf("channel %s is not a settlement channel", ch))
		}
		g.settlements[strings.ToUpper(ch)] = s
	}
	return g, nil
}

type sale struct {
	branch  int
	channel string
	amount  decimal.Decimal
	at      time.Time
	card    string
	ref     string
}

// Generate builds a dataset. The same seed gives the same dataset.
func (g *Generator) Generate() *Dataset {
	ds := &Dataset{
		LedgerChannel: strings.ToUpper(g.config.LedgerChannel),
		Ledger:        newTable(g.ledger),
		Settlements:   make(map[string]*Table, len(g.settlements)),
		BranchKey:     &Table{Header: []string{"STORE_NAME", "BRANCH"}},
	}
	for _, ch := range g.config.Channels {
		ch = strings.ToUpper(ch)
		ds.Channels = append(ds.Channels, ch)
		ds.Settlements[ch] = newTable(g.settlements[ch])
		for _, b := range g.config.Branches {
			ds.BranchKey.Rows = append(ds.BranchKey.Rows, []string{storeName(b, ch), b})
		}
	}

	for i := 0; i < g.config.Transactions; i++ {
		s := g.newSale()
		ledgerRef := "00" + s.ref
		settled := true

		switch p := g.rnd.Float64(); {
		case p < g.config.FallbackRatio:
			ledgerRef = ""
			ds.Expected.Fallback++
		case p < g.config.FallbackRatio+g.config.UnmatchedRatio:
			ledgerRef = g.reference()
			settled = false
		default:
			ds.Expected.Exact++
		}

		ds.Ledger.add(g.ledger, g.ledgerRow(i, s, ledgerRef))
		if settled {
			ds.Settlements[s.channel].add(g.settlements[s.channel], g.settlementRow(s, storeName(g.config.Branches[s.branch], s.channel)))
			ds.Expected.SettlementRecords++
		}
	}

	for i := 0; i < g.config.UnresolvedRows; i++ {
		s := g.newSale()
		store := fmt.Sprintf("%s UNMAPPED OUTLET %d", s.channel, i+1)
		ds.Settlements[s.channel].add(g.settlements[s.channel], g.settlementRow(s, store))
		ds.Expected.SettlementRecords++
		ds.Expected.UnresolvedSettlement++
	}

	ds.Expected.LedgerRecords = g.config.Transactions
	ds.Expected.UnmatchedLedger = ds.Expected.LedgerRecords - ds.Expected.Exact - ds.Expected.Fallback
	return ds
}

func (g *Generator) newSale() sale {
	cents := g.config.MaxAmount.Sub(g.config.MinAmount).Shift(2).IntPart()
	amount := g.config.MinAmount
	if cents > 0 {
		amount = amount.Add(decimal.New(g.rnd.Int63n(cents+1), -2))
	}
	return sale{
		branch:  g.rnd.Intn(len(g.config.Branches)),
		channel: strings.ToUpper(g.config.Channels[g.rnd.Intn(len(g.config.Channels))]),
		amount:  amount,
		at:      g.config.Date.Add(time.Duration(8*3600+g.rnd.Intn(12*3600)) * time.Second),
		card:    fmt.Sprintf("4%05d******%04d", g.rnd.Intn(100000), g.rnd.Intn(10000)),
		ref:     g.reference(),
	}
}

func (g *Generator) reference() string {
	g.nextRef++
	return fmt.Sprintf("%d", g.nextRef)
}

func (g *Generator) ledgerRow(i int, s sale, ref string) map[normalizer.Field]string {
	return map[normalizer.Field]string{
		normalizer.FieldStoreCode:       fmt.Sprintf("S%03d", s.branch+1),
		normalizer.FieldStoreName:       g.config.Branches[s.branch],
		normalizer.FieldZedDate:         g.config.Date.Format("2006-01-02"),
		normalizer.FieldTillID:          fmt.Sprintf("%d", i%4+1),
		normalizer.FieldSessionID:       fmt.Sprintf("%s-%d", g.config.Date.Format("20060102"), i%4+1),
		normalizer.FieldReceiptID:       fmt.Sprintf("R%06d", i+1),
		normalizer.FieldCustomerName:    "WALK IN",
		normalizer.FieldCardType:        "VISA",
		normalizer.FieldCardNumber:      s.card,
		normalizer.FieldAmount:          s.amount.StringFixed(2),
		normalizer.FieldReferenceNumber: ref,
		normalizer.FieldTransactionTime: s.at.Format(layout(g.ledger)),
	}
}

func (g *Generator) settlementRow(s sale, store string) map[normalizer.Field]string {
	schema := g.settlements[s.channel]
	commission := s.amount.Mul(decimal.NewFromFloat(0.015)).Round(2)
	return map[normalizer.Field]string{
		normalizer.FieldTerminalID:       fmt.Sprintf("%s%02d", s.channel[:1], s.branch+1),
		normalizer.FieldStoreName:        store,
		normalizer.FieldCardNumber:       s.card,
		normalizer.FieldTransactionTime:  s.at.Format(layout(schema)),
		normalizer.FieldReferenceNumber:  s.ref,
		normalizer.FieldPurchaseAmount:   s.amount.StringFixed(2),
		normalizer.FieldCommission:       commission.StringFixed(2),
		normalizer.FieldSettlementAmount: s.amount.Sub(commission).StringFixed(2),
	}
}

func storeName(branch, channel string) string {
	return fmt.Sprintf("%s - %s POS", strings.ToUpper(branch), channel)
}

func layout(s *normalizer.ChannelSchema) string {
	if len(s.TimeLayouts) > 0 {
		return s.TimeLayouts[0]
	}
	return time.RFC3339
}

func newTable(s *normalizer.ChannelSchema) *Table {
	t := &Table{}
	for _, f := range s.SortedFields() {
		t.Header = append(t.Header, s.Fields[f])
	}
	return t
}

// add lays values out in the schema's column order; unmapped fields are dropped
func (t *Table) add(s *normalizer.ChannelSchema, values map[normalizer.Field]string) {
	row := make([]string, 0, len(t.Header))
	for _, f := range s.SortedFields() {
		row = append(row, values[f])
	}
	t.Rows = append(t.Rows, row)
}
