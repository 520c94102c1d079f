// Package reporter renders reconciliation reports.
//
// A report is written in one of three formats:
//   - Console: the branch table and run summary for a terminal
//   - JSON: the whole report for programmatic consumption
//   - CSV: the branch table for spreadsheets
//
// The exceptions a finance team follows up on (unmatched settlement per
// channel, unmatched ledger sales, unresolved branches, diagnostics) are
// written as separate CSV files by ExceptionWriter.
//
// Example usage:
//
//	generator, err := reporter.NewReportGenerator(&reporter.ReportConfig{
//		Format:        reporter.FormatConsole,
//		DecimalPlaces: 2,
//	})
//	err = generator.GenerateReport(report, os.Stdout)
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"
	"unicode/utf8"

	"card-reconciliation-service/internal/aggregator"
	"card-reconciliation-service/internal/models"
	"card-reconciliation-service/pkg/errors"

	"github.com/shopspring/decimal"
)

// OutputFormat represents the supported report output formats
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `mapstructure:"format" json:"format"`

	// DecimalPlaces fixes the scale of amounts in console and CSV output
	DecimalPlaces int32 `mapstructure:"decimal_places" json:"decimal_places"`

	IncludeMatchResults bool `mapstructure:"include_match_results" json:"include_match_results"`
	IncludeDiagnostics  bool `mapstructure:"include_diagnostics" json:"include_diagnostics"`

	// MaxListItems caps the console lists; zero lists everything
	MaxListItems int `mapstructure:"max_list_items" json:"max_list_items"`

	CSVDelimiter string `mapstructure:"csv_delimiter" json:"csv_delimiter"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:              FormatConsole,
		DecimalPlaces:       2,
		IncludeMatchResults: false,
		IncludeDiagnostics:  true,
		MaxListItems:        20,
		CSVDelimiter:        ",",
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "report.format", c.Format,
			fmt.Errorf("supported formats are console, json and csv"))
	}
	if c.DecimalPlaces < 0 || c.DecimalPlaces > 6 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "report.decimal_places", c.DecimalPlaces,
			fmt.Errorf("must be between 0 and 6"))
	}
	if c.MaxListItems < 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "report.max_list_items", c.MaxListItems,
			fmt.Errorf("must not be negative"))
	}
	if utf8.RuneCountInString(c.CSVDelimiter) != 1 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "report.csv_delimiter", c.CSVDelimiter,
			fmt.Errorf("delimiter must be a single character"))
	}
	return nil
}

func (c *ReportConfig) delimiter() rune {
	r, _ := utf8.DecodeRuneInString(c.CSVDelimiter)
	return r
}

// ReportGenerator generates reconciliation reports in various formats
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &ReportGenerator{
		config: config,
	}, nil
}

// Config returns the report configuration
func (rg *ReportGenerator) Config() *ReportConfig {
	return rg.config
}

// GenerateReport writes report to writer in the configured format
func (rg *ReportGenerator) GenerateReport(report *aggregator.ReconciliationReport, writer io.Writer) error {
	if report == nil {
		return errors.ValidationError(errors.CodeMissingField, "report", nil, nil)
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(report, writer)
	case FormatJSON:
		return rg.generateJSONReport(report, writer)
	case FormatCSV:
		return rg.generateCSVReport(report, writer)
	default:
		return errors.ConfigurationError(errors.CodeInvalidConfig, "report.format", rg.config.Format, nil)
	}
}

func (rg *ReportGenerator) generateConsoleReport(report *aggregator.ReconciliationReport, writer io.Writer) error {
	bw := &errWriter{w: writer}

	fmt.Fprintf(bw, "CARD RECONCILIATION REPORT\n")
	fmt.Fprintf(bw, "Run: %s\n", report.RunID)
	fmt.Fprintf(bw, "Generated: %s\n", report.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(bw, "Channels: %s\n\n", strings.Join(report.Channels, ", "))

	fmt.Fprintf(bw, "=== BRANCH SUMMARY ===\n")
	rg.printBranchTable(report, bw)
	fmt.Fprintf(bw, "\n")

	fmt.Fprintf(bw, "=== MATCH SUMMARY ===\n")
	rg.printMatchSummary(report, bw)
	fmt.Fprintf(bw, "\n")

	if unmatched := countUnmatched(report); unmatched > 0 {
		fmt.Fprintf(bw, "=== UNMATCHED SETTLEMENT ===\n")
		rg.printUnmatchedSettlement(report, bw)
		fmt.Fprintf(bw, "\n")
	}

	if len(report.UnresolvedSettlement) > 0 {
		fmt.Fprintf(bw, "=== UNRESOLVED BRANCHES ===\n")
		rg.printUnresolved(report, bw)
		fmt.Fprintf(bw, "\n")
	}

	if rg.config.IncludeDiagnostics && len(report.Diagnostics) > 0 {
		fmt.Fprintf(bw, "=== DIAGNOSTICS ===\n")
		rg.printDiagnostics(report, bw)
		fmt.Fprintf(bw, "\n")
	}

	return bw.err
}

func (rg *ReportGenerator) generateJSONReport(report *aggregator.ReconciliationReport, writer io.Writer) error {
	out := *report
	if !rg.config.IncludeMatchResults {
		out.MatchResults = nil
	}
	if !rg.config.IncludeDiagnostics {
		out.Diagnostics = nil
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(&out); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, errors.CodeProcessingError, "failed to encode JSON report")
	}
	return nil
}

func (rg *ReportGenerator) generateCSVReport(report *aggregator.ReconciliationReport, writer io.Writer) error {
	cw := csv.NewWriter(writer)
	cw.Comma = rg.config.delimiter()

	if err := cw.Write(summaryHeader(report.Channels)); err != nil {
		return err
	}
	for _, b := range report.Branches {
		if err := cw.Write(summaryRow(b, report.Channels, rg.config.DecimalPlaces)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (rg *ReportGenerator) printBranchTable(report *aggregator.ReconciliationReport, writer io.Writer) {
	tw := tabwriter.NewWriter(writer, 0, 0, 2, ' ', tabwriter.AlignRight)
	places := rg.config.DecimalPlaces

	header := []string{"Branch", "Ledger"}
	for _, ch := range report.Channels {
		header = append(header, ch)
	}
	header = append(header, "Gross", "Variance")
	for _, ch := range report.Channels {
		header = append(header, ch+" Unmatched")
	}
	header = append(header, "Ledger Unmatched", "Net Variance")
	fmt.Fprintln(tw, strings.Join(header, "\t")+"\t")

	for _, b := range report.Branches {
		cells := []string{b.BranchName, b.LedgerTotal.StringFixed(places)}
		for _, ch := range report.Channels {
			cells = append(cells, b.PaidByChannel[ch].StringFixed(places))
		}
		cells = append(cells, b.GrossPaid.StringFixed(places), b.Variance.StringFixed(places))
		for _, ch := range report.Channels {
			cells = append(cells, b.UnmatchedByChannel[ch].StringFixed(places))
		}
		cells = append(cells, b.UnmatchedLedger.StringFixed(places), b.NetVariance.StringFixed(places))
		fmt.Fprintln(tw, strings.Join(cells, "\t")+"\t")
	}
	tw.Flush()
}

func (rg *ReportGenerator) printMatchSummary(report *aggregator.ReconciliationReport, writer io.Writer) {
	s := report.MatchSummary
	fmt.Fprintf(writer, "Ledger Records:      %d\n", s.LedgerRecords)
	fmt.Fprintf(writer, "Settlement Records:  %d\n", s.SettlementRecords)
	fmt.Fprintf(writer, "Exact Matches:       %d (%.1f%%)\n", s.Exact, calculatePercentage(s.Exact, s.LedgerRecords))
	fmt.Fprintf(writer, "Fallback Matches:    %d (%.1f%%)\n", s.Fallback, calculatePercentage(s.Fallback, s.LedgerRecords))
	fmt.Fprintf(writer, "Unmatched Ledger:    %d (%.1f%%)\n", s.Unmatched, calculatePercentage(s.Unmatched, s.LedgerRecords))

	st := report.Stats
	if st.LedgerWithoutStore > 0 {
		fmt.Fprintf(writer, "Ledger Without Store: %d\n", st.LedgerWithoutStore)
	}
	if st.ExcludedLedgerRows > 0 || st.ExcludedSettlementRows > 0 {
		fmt.Fprintf(writer, "Rows Without Amount: %d ledger, %d settlement\n", st.ExcludedLedgerRows, st.ExcludedSettlementRows)
	}
}

func (rg *ReportGenerator) printUnmatchedSettlement(report *aggregator.ReconciliationReport, writer io.Writer) {
	places := rg.config.DecimalPlaces
	for _, ch := range report.Channels {
		records := report.UnmatchedSettlement[ch]
		if len(records) == 0 {
			continue
		}
		total := decimal.Zero
		for _, r := range records {
			total = total.Add(r.PurchaseAmount.OrZero())
		}
		fmt.Fprintf(writer, "%s: %d records, %s\n", ch, len(records), total.StringFixed(places))
	}
}

func (rg *ReportGenerator) printUnresolved(report *aggregator.ReconciliationReport, writer io.Writer) {
	stores := unresolvedStores(report.UnresolvedSettlement)
	fmt.Fprintf(writer, "%d settlement records across %d store names have no branch\n",
		len(report.UnresolvedSettlement), len(stores))

	limit := len(stores)
	if rg.config.MaxListItems > 0 && limit > rg.config.MaxListItems {
		limit = rg.config.MaxListItems
	}
	for _, s := range stores[:limit] {
		fmt.Fprintf(writer, "  %-40s %d\n", s.name, s.count)
	}
	if limit < len(stores) {
		fmt.Fprintf(writer, "  ... and %d more\n", len(stores)-limit)
	}
}

func (rg *ReportGenerator) printDiagnostics(report *aggregator.ReconciliationReport, writer io.Writer) {
	counts := report.DiagnosticsByCode()
	codes := make([]string, 0, len(counts))
	for code := range counts {
		codes = append(codes, string(code))
	}
	sort.Strings(codes)
	for _, code := range codes {
		fmt.Fprintf(writer, "%-20s %d\n", code, counts[errors.ErrorCode(code)])
	}
}

type storeCount struct {
	name  string
	count int
}

// unresolvedStores counts unresolved records per store name, most frequent first
func unresolvedStores(records []models.SettlementRecord) []storeCount {
	counts := make(map[string]int)
	for _, r := range records {
		name := strings.TrimSpace(r.StoreName)
		if name == "" {
			name = "(blank)"
		}
		counts[name]++
	}

	stores := make([]storeCount, 0, len(counts))
	for name, n := range counts {
		stores = append(stores, storeCount{name: name, count: n})
	}
	sort.Slice(stores, func(i, j int) bool {
		if stores[i].count != stores[j].count {
			return stores[i].count > stores[j].count
		}
		return stores[i].name < stores[j].name
	})
	return stores
}

func countUnmatched(report *aggregator.ReconciliationReport) int {
	n := 0
	for _, records := range report.UnmatchedSettlement {
		n += len(records)
	}
	return n
}

// summaryHeader returns the branch table header for channels
func summaryHeader(channels []string) []string {
	header := []string{"Branch", "Ledger Total"}
	for _, ch := range channels {
		header = append(header, ch+" Paid")
	}
	header = append(header, "Gross Paid", "Variance")
	for _, ch := range channels {
		header = append(header, ch+" Unmatched")
	}
	return append(header, "Unmatched Ledger", "Net Variance",
		"Ledger Records", "Settlement Records", "Excluded Ledger Rows", "Excluded Settlement Rows")
}

func summaryRow(b aggregator.BranchSummary, channels []string, places int32) []string {
	row := []string{b.BranchName, b.LedgerTotal.StringFixed(places)}
	for _, ch := range channels {
		row = append(row, b.PaidByChannel[ch].StringFixed(places))
	}
	row = append(row, b.GrossPaid.StringFixed(places), b.Variance.StringFixed(places))
	for _, ch := range channels {
		row = append(row, b.UnmatchedByChannel[ch].StringFixed(places))
	}
	return append(row,
		b.UnmatchedLedger.StringFixed(places),
		b.NetVariance.StringFixed(places),
		fmt.Sprint(b.LedgerRecords),
		fmt.Sprint(b.SettlementRecords),
		fmt.Sprint(b.ExcludedLedgerRows),
		fmt.Sprint(b.ExcludedSettlementRows),
	)
}

func calculatePercentage(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

// errWriter keeps the first write error so the console sections can be
// written without checking every Fprintf
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) Write(p []byte) (int, error) {
	if ew.err != nil {
		return 0, ew.err
	}
	n, err := ew.w.Write(p)
	if err != nil {
		ew.err = err
	}
	return n, err
}
