package sampledata

import (
	"context"
	"testing"

	"card-reconciliation-service/internal/normalizer"
	"card-reconciliation-service/internal/parsers"
	"card-reconciliation-service/internal/reconciler"
	"card-reconciliation-service/pkg/errors"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		code   errors.ErrorCode
	}{
		{"default", func(*Config) {}, ""},
		{"no transactions", func(c *Config) { c.Transactions = 0 }, errors.CodeInvalidConfig},
		{"ratios over one", func(c *Config) { c.FallbackRatio, c.UnmatchedRatio = 0.7, 0.4 }, errors.CodeInvalidConfig},
		{"negative unresolved", func(c *Config) { c.UnresolvedRows = -1 }, errors.CodeInvalidConfig},
		{"no channels", func(c *Config) { c.Channels = nil }, errors.CodeMissingConfig},
		{"no branches", func(c *Config) { c.Branches = nil }, errors.CodeMissingConfig},
		{"inverted range", func(c *Config) { c.MaxAmount = c.MinAmount.Sub(c.MinAmount).Sub(c.MinAmount) }, errors.CodeInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.code == "" {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.HasCode(err, tt.code), "got %v", err)
		})
	}
}

func TestNewGenerator_ChannelKinds(t *testing.T) {
	registry := normalizer.DefaultRegistry()

	cfg := DefaultConfig()
	cfg.LedgerChannel = "KCB"
	_, err := NewGenerator(registry, cfg)
	assert.True(t, errors.HasCode(err, errors.CodeInvalidConfig))

	cfg = DefaultConfig()
	cfg.Channels = []string{"KCB", "ASPIRE"}
	_, err = NewGenerator(registry, cfg)
	assert.True(t, errors.HasCode(err, errors.CodeInvalidConfig))

	cfg = DefaultConfig()
	cfg.Channels = []string{"MPESA"}
	_, err = NewGenerator(registry, cfg)
	assert.True(t, errors.HasCode(err, errors.CodeUnknownChannel))
}

func TestGenerate_Deterministic(t *testing.T) {
	registry := normalizer.DefaultRegistry()

	g1, err := NewGenerator(registry, nil)
	require.NoError(t, err)
	g2, err := NewGenerator(registry, nil)
	require.NoError(t, err)

	a, b := g1.Generate(), g2.Generate()
	assert.Equal(t, a, b)

	assert.Equal(t, 200, a.Expected.LedgerRecords)
	assert.Len(t, a.Ledger.Rows, 200)
	assert.Equal(t, a.Expected.LedgerRecords, a.Expected.Exact+a.Expected.Fallback+a.Expected.UnmatchedLedger)
	assert.Equal(t, []string{"KCB", "EQUITY"}, a.Channels)
	assert.Len(t, a.BranchKey.Rows, 8)

	settled := 0
	for _, ch := range a.Channels {
		table := a.Settlements[ch]
		for _, row := range table.Rows {
			assert.Len(t, row, len(table.Header))
		}
		settled += len(table.Rows)
	}
	assert.Equal(t, a.Expected.SettlementRecords, settled)
}

func TestGenerate_Headers(t *testing.T) {
	g, err := NewGenerator(normalizer.DefaultRegistry(), nil)
	require.NoError(t, err)
	ds := g.Generate()

	assert.Contains(t, ds.Ledger.Header, "STORE_NAME")
	assert.Contains(t, ds.Ledger.Header, "RRN")
	assert.Contains(t, ds.Settlements["KCB"].Header, "Merchant Name")
	assert.Contains(t, ds.Settlements["EQUITY"].Header, "Outlet Name")
}

func TestDataset_Reconciles(t *testing.T) {
	registry := normalizer.DefaultRegistry()
	g, err := NewGenerator(registry, nil)
	require.NoError(t, err)
	ds := g.Generate()

	fs := afero.NewMemMapFs()
	files, err := ds.Write(fs, "/data")
	require.NoError(t, err)
	assert.Equal(t, "/data/aspire.csv", files.Ledger.Path)
	assert.Equal(t, []string{"KCB=/data/kcb.csv", "EQUITY=/data/equity.csv"}, files.SettlementArgs())
	assert.Equal(t, "/data/card_key.csv", files.BranchKey)

	parser := parsers.NewBaseParser(fs, parsers.DefaultParseConfig())
	src := parsers.NewFileSource(parser, files.Ledger, files.Settlements, files.BranchKey)
	svc, err := reconciler.NewService(registry, reconciler.DefaultConfig())
	require.NoError(t, err)

	report, err := svc.Reconcile(context.Background(), src)
	require.NoError(t, err)

	want := ds.Expected
	assert.Equal(t, want.LedgerRecords, report.Stats.LedgerRecords)
	assert.Equal(t, want.SettlementRecords, report.Stats.SettlementRecords)
	assert.Equal(t, want.Exact, report.MatchSummary.Exact)
	assert.Equal(t, want.Fallback, report.MatchSummary.Fallback)
	assert.Equal(t, want.UnmatchedLedger, report.MatchSummary.Unmatched)
	assert.Equal(t, want.UnresolvedSettlement, report.Stats.UnresolvedSettlement)
	assert.Zero(t, report.Stats.ExcludedLedgerRows)
	assert.Zero(t, report.Stats.ExcludedSettlementRows)
}

func TestDataset_WriteReadOnly(t *testing.T) {
	g, err := NewGenerator(normalizer.DefaultRegistry(), nil)
	require.NoError(t, err)

	_, err = g.Generate().Write(afero.NewReadOnlyFs(afero.NewMemMapFs()), "/data")
	assert.True(t, errors.HasCode(err, errors.CodeDirectoryError))
}
