// Package config assembles the run configuration of the reconciler CLI
// from flags, environment variables and an optional config file.
package config

import (
	"fmt"
	"strings"

	"card-reconciliation-service/internal/matcher"
	"card-reconciliation-service/internal/normalizer"
	"card-reconciliation-service/internal/parsers"
	"card-reconciliation-service/internal/reconciler"
	"card-reconciliation-service/internal/reporter"
	"card-reconciliation-service/pkg/errors"
	"card-reconciliation-service/pkg/logger"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable the CLI reads, with
// nested keys joined by underscores: RECONCILER_REPORT_FORMAT.
const EnvPrefix = "RECONCILER"

// DefaultLedgerChannel is the channel the ledger export is read as
const DefaultLedgerChannel = "ASPIRE"

// AppConfig is everything one reconcile run needs
type AppConfig struct {
	Ledger        string   `mapstructure:"ledger"`
	LedgerChannel string   `mapstructure:"ledger_channel"`
	Settlements   []string `mapstructure:"settlements"`
	BranchKeyFile string   `mapstructure:"branch_key_file"`

	// Channels fixes the report's settlement columns and their order
	Channels []string `mapstructure:"channels"`

	// Schemas add channels or replace the built-in schema of a channel
	Schemas []normalizer.ChannelSchema `mapstructure:"schemas"`

	Matching matcher.MatchingConfig `mapstructure:"matching"`
	Parsing  parsers.ParseConfig    `mapstructure:"parsing"`
	Report   reporter.ReportConfig  `mapstructure:"report"`
	Log      logger.Config          `mapstructure:"log"`

	OutputFile    string `mapstructure:"output_file"`
	ExceptionsDir string `mapstructure:"exceptions_dir"`
	MetricsFile   string `mapstructure:"metrics_file"`
}

// Default returns the configuration used when nothing is set
func Default() *AppConfig {
	return &AppConfig{
		LedgerChannel: DefaultLedgerChannel,
		Matching:      *matcher.DefaultMatchingConfig(),
		Parsing:       *parsers.DefaultParseConfig(),
		Report:        *reporter.DefaultReportConfig(),
		Log:           *logger.DefaultConfig(),
	}
}

// envKeys are the settings that can be given as environment variables
var envKeys = []string{
	"ledger", "ledger_channel", "settlements", "branch_key_file", "channels",
	"output_file", "exceptions_dir", "metrics_file",
	"matching.enable_fallback", "matching.fallback_precision",
	"parsing.delimiter", "parsing.comment", "parsing.concurrency", "parsing.max_field_size",
	"parsing.validate_encoding", "parsing.branch_key.store_column", "parsing.branch_key.branch_column",
	"report.format", "report.decimal_places", "report.include_match_results",
	"report.include_diagnostics", "report.max_list_items", "report.csv_delimiter",
	"log.level", "log.format", "log.output", "log.file",
}

// NewViper returns a viper instance reading RECONCILER_ variables
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		// BindEnv only fails without a key
		_ = v.BindEnv(key)
	}
	return v
}

// ReadFile loads a config file into v. The format follows the extension.
func ReadFile(v *viper.Viper, path string) error {
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "config", path, err).
			WithSuggestion("check the config file exists and is valid YAML, JSON or TOML")
	}
	return nil
}

// Load decodes the settings held by v over the defaults. Lists may be
// given as comma separated strings, which is how they arrive from
// environment variables.
func Load(v *viper.Viper) (*AppConfig, error) {
	cfg := Default()
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.TextUnmarshallerHookFunc(),
	))
	if err := v.Unmarshal(cfg, hook); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "config", v.ConfigFileUsed(), err)
	}

	cfg.LedgerChannel = strings.ToUpper(strings.TrimSpace(cfg.LedgerChannel))
	cfg.Settlements = compact(cfg.Settlements)
	cfg.Channels = compact(cfg.Channels)
	return cfg, nil
}

// Validate checks that a run can start
func (c *AppConfig) Validate() error {
	if strings.TrimSpace(c.Ledger) == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "ledger", nil, nil).
			WithSuggestion("pass the ledger export with --ledger")
	}
	if c.LedgerChannel == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "ledger_channel", nil, nil)
	}
	if len(c.Settlements) == 0 {
		return errors.ConfigurationError(errors.CodeMissingConfig, "settlements", nil, nil).
			WithSuggestion("pass each settlement export with --settlement CHANNEL=path")
	}
	if _, err := c.SettlementFiles(); err != nil {
		return err
	}

	if err := c.Matching.Validate(); err != nil {
		return err
	}
	if err := c.Parsing.Validate(); err != nil {
		return err
	}
	if err := c.Report.Validate(); err != nil {
		return err
	}
	if err := c.Log.Validate(); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "log", c.Log, err)
	}
	return nil
}

// LedgerFile returns the ledger export with its channel
func (c *AppConfig) LedgerFile() parsers.ChannelFile {
	return parsers.ChannelFile{Channel: c.LedgerChannel, Path: strings.TrimSpace(c.Ledger)}
}

// SettlementFiles parses the CHANNEL=path settlement arguments. A channel
// may appear once.
func (c *AppConfig) SettlementFiles() ([]parsers.ChannelFile, error) {
	files := make([]parsers.ChannelFile, 0, len(c.Settlements))
	seen := make(map[string]bool, len(c.Settlements))
	for _, s := range c.Settlements {
		f, err := parsers.ParseChannelFile(s)
		if err != nil {
			return nil, err
		}
		if seen[f.Channel] {
			return nil, errors.ConfigurationError(errors.CodeConfigConflict, "settlements", f.Channel,
				fmt.Errorf("channel %s is given more than once", f.Channel))
		}
		seen[f.Channel] = true
		files = append(files, f)
	}
	return files, nil
}

// Registry returns the built-in schemas with the configured ones applied.
// A configured schema replaces the built-in schema of the same channel.
func (c *AppConfig) Registry() (*normalizer.Registry, error) {
	custom := make(map[string]bool, len(c.Schemas))
	schemas := make([]*normalizer.ChannelSchema, 0, len(c.Schemas)+3)
	for i := range c.Schemas {
		s := c.Schemas[i]
		key := strings.ToUpper(strings.TrimSpace(s.Channel))
		if custom[key] {
			return nil, errors.ConfigurationError(errors.CodeConfigConflict, "schemas", s.Channel,
				fmt.Errorf("channel %s is defined more than once", s.Channel))
		}
		custom[key] = true
		schemas = append(schemas, &s)
	}
	for _, s := range normalizer.DefaultSchemas() {
		if !custom[s.Channel] {
			schemas = append(schemas, s)
		}
	}
	return normalizer.NewRegistry(schemas...)
}

// ReconcilerConfig returns the run options for the reconciler service
func (c *AppConfig) ReconcilerConfig() *reconciler.Config {
	matching := c.Matching
	return &reconciler.Config{
		Channels: append([]string(nil), c.Channels...),
		Matching: &matching,
	}
}

func compact(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
