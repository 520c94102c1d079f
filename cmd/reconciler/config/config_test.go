package config

import (
	"testing"

	"card-reconciliation-service/internal/models"
	"card-reconciliation-service/internal/normalizer"
	"card-reconciliation-service/internal/reporter"
	"card-reconciliation-service/pkg/errors"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *AppConfig {
	cfg := Default()
	cfg.Ledger = "aspire.csv"
	cfg.Settlements = []string{"KCB=kcb.csv", "EQUITY=equity.csv"}
	return cfg
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(NewViper())
	require.NoError(t, err)
	assert.Equal(t, DefaultLedgerChannel, cfg.LedgerChannel)
	assert.True(t, cfg.Matching.EnableFallback)
	assert.Equal(t, int32(0), cfg.Matching.FallbackPrecision)
	assert.Equal(t, reporter.FormatConsole, cfg.Report.Format)
	assert.Equal(t, ",", cfg.Parsing.Delimiter)
	assert.Equal(t, "STORE_NAME", cfg.Parsing.BranchKey.Store)
}

func TestLoad_File(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/reconcile.yaml", []byte(`
ledger: exports/aspire.csv
ledger_channel: aspire
settlements:
  - KCB=exports/kcb.csv
  - EQUITY=exports/equity.csv
branch_key_file: card_key.yaml
channels: [EQUITY, KCB]
matching:
  enable_fallback: false
  fallback_precision: 2
parsing:
  delimiter: ";"
  branch_key:
    store_column: Outlet
    branch_column: Region
report:
  format: json
  include_match_results: true
exceptions_dir: out/exceptions
`), 0o644))

	v := NewViper()
	v.SetFs(fs)
	require.NoError(t, ReadFile(v, "/etc/reconcile.yaml"))
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "exports/aspire.csv", cfg.Ledger)
	assert.Equal(t, "ASPIRE", cfg.LedgerChannel)
	assert.Equal(t, []string{"KCB=exports/kcb.csv", "EQUITY=exports/equity.csv"}, cfg.Settlements)
	assert.Equal(t, "card_key.yaml", cfg.BranchKeyFile)
	assert.Equal(t, []string{"EQUITY", "KCB"}, cfg.Channels)
	assert.False(t, cfg.Matching.EnableFallback)
	assert.Equal(t, int32(2), cfg.Matching.FallbackPrecision)
	assert.Equal(t, ";", cfg.Parsing.Delimiter)
	assert.Equal(t, "Outlet", cfg.Parsing.BranchKey.Store)
	assert.Equal(t, "Region", cfg.Parsing.BranchKey.Branch)
	assert.Equal(t, reporter.FormatJSON, cfg.Report.Format)
	assert.True(t, cfg.Report.IncludeMatchResults)
	assert.Equal(t, 2, int(cfg.Report.DecimalPlaces), "unset keys keep their defaults")
	assert.Equal(t, "out/exceptions", cfg.ExceptionsDir)
	require.NoError(t, cfg.Validate())
}

func TestReadFile_Missing(t *testing.T) {
	v := NewViper()
	v.SetFs(afero.NewMemMapFs())
	err := ReadFile(v, "/etc/nope.yaml")
	assert.True(t, errors.HasCode(err, errors.CodeInvalidConfig))
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("RECONCILER_LEDGER", "aspire.csv")
	t.Setenv("RECONCILER_SETTLEMENTS", "KCB=kcb.csv, EQUITY=equity.csv")
	t.Setenv("RECONCILER_MATCHING_FALLBACK_PRECISION", "1")
	t.Setenv("RECONCILER_REPORT_FORMAT", "csv")
	t.Setenv("RECONCILER_PARSING_BRANCH_KEY_STORE_COLUMN", "Outlet")

	cfg, err := Load(NewViper())
	require.NoError(t, err)
	assert.Equal(t, "aspire.csv", cfg.Ledger)
	assert.Equal(t, []string{"KCB=kcb.csv", "EQUITY=equity.csv"}, cfg.Settlements)
	assert.Equal(t, int32(1), cfg.Matching.FallbackPrecision)
	assert.Equal(t, reporter.FormatCSV, cfg.Report.Format)
	assert.Equal(t, "Outlet", cfg.Parsing.BranchKey.Store)
	assert.Equal(t, "BRANCH", cfg.Parsing.BranchKey.Branch)
}

func TestAppConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*AppConfig)
		code   errors.ErrorCode
	}{
		{"valid", func(*AppConfig) {}, ""},
		{"no ledger", func(c *AppConfig) { c.Ledger = " " }, errors.CodeMissingConfig},
		{"no ledger channel", func(c *AppConfig) { c.LedgerChannel = "" }, errors.CodeMissingConfig},
		{"no settlements", func(c *AppConfig) { c.Settlements = nil }, errors.CodeMissingConfig},
		{"malformed settlement", func(c *AppConfig) { c.Settlements = []string{"kcb.csv"} }, errors.CodeInvalidFormat},
		{"repeated channel", func(c *AppConfig) { c.Settlements = []string{"KCB=a.csv", "kcb=b.csv"} }, errors.CodeConfigConflict},
		{"fallback precision", func(c *AppConfig) { c.Matching.FallbackPrecision = 5 }, errors.CodeInvalidConfig},
		{"delimiter", func(c *AppConfig) { c.Parsing.Delimiter = "" }, errors.CodeInvalidConfig},
		{"report format", func(c *AppConfig) { c.Report.Format = "pdf" }, errors.CodeInvalidConfig},
		{"log level", func(c *AppConfig) { c.Log.Level = "loud" }, errors.CodeInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
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

func TestAppConfig_Files(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, "ASPIRE", cfg.LedgerFile().Channel)
	assert.Equal(t, "aspire.csv", cfg.LedgerFile().Path)

	files, err := cfg.SettlementFiles()
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "KCB", files[0].Channel)
	assert.Equal(t, "equity.csv", files[1].Path)
}

func mpesaSchema() normalizer.ChannelSchema {
	return normalizer.ChannelSchema{
		Channel: "MPESA",
		Kind:    models.KindSettlement,
		Fields: map[normalizer.Field]string{
			normalizer.FieldStoreName:       "Shop",
			normalizer.FieldCardNumber:      "Phone",
			normalizer.FieldReferenceNumber: "Receipt",
			normalizer.FieldPurchaseAmount:  "Paid In",
		},
	}
}

func TestAppConfig_Registry(t *testing.T) {
	cfg := validConfig()
	kcb := mpesaSchema()
	kcb.Channel = "kcb"
	cfg.Schemas = []normalizer.ChannelSchema{mpesaSchema(), kcb}

	registry, err := cfg.Registry()
	require.NoError(t, err)
	assert.Equal(t, []string{"ASPIRE", "EQUITY", "KCB", "MPESA"}, registry.Channels())

	got, err := registry.Lookup("KCB")
	require.NoError(t, err)
	assert.Equal(t, "Shop", got.Fields[normalizer.FieldStoreName], "configured schema replaces the built-in one")

	cfg.Schemas = []normalizer.ChannelSchema{mpesaSchema(), mpesaSchema()}
	_, err = cfg.Registry()
	assert.True(t, errors.HasCode(err, errors.CodeConfigConflict))
}

func TestAppConfig_ReconcilerConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Channels = []string{"EQUITY", "KCB"}
	cfg.Matching.FallbackPrecision = 2

	rc := cfg.ReconcilerConfig()
	require.NoError(t, rc.Validate())
	assert.Equal(t, []string{"EQUITY", "KCB"}, rc.Channels)
	assert.Equal(t, int32(2), rc.Matching.FallbackPrecision)

	rc.Matching.FallbackPrecision = 3
	assert.Equal(t, int32(2), cfg.Matching.FallbackPrecision)
}
