package reporter

import (
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"card-reconciliation-service/internal/aggregator"
	"card-reconciliation-service/internal/models"
	"card-reconciliation-service/pkg/errors"
	"card-reconciliation-service/pkg/logger"

	"github.com/spf13/afero"
)

// Exception file names
const (
	SummaryFile     = "summary.csv"
	LedgerRecsFile  = "ledger_recs.csv"
	UnresolvedFile  = "unresolved_branches.csv"
	MatchesFile     = "matches.csv"
	DiagnosticsFile = "diagnostics.csv"
)

const timeLayout = "2006-01-02 15:04:05"

var settlementHeader = []string{
	"ID", "Row", "Channel", "Terminal ID", "Store Name", "Branch", "Card Number", "Card Check",
	"Transaction Time", "Reference", "Purchase Amount", "Commission", "Settlement Amount",
}

var ledgerHeader = []string{
	"ID", "Row", "Store Code", "Store Name", "ZED Date", "Till", "Session", "Receipt", "Customer",
	"Card Type", "Card Number", "Card Check", "Transaction Time", "Reference", "Amount",
}

type exceptionFile struct {
	name   string
	header []string
	rows   [][]string
}

// ExceptionWriter writes the follow-up files of a run into a directory
type ExceptionWriter struct {
	fs     afero.Fs
	config *ReportConfig
	logger logger.Logger
}

// NewExceptionWriter creates an exception writer over fs
func NewExceptionWriter(fs afero.Fs, config *ReportConfig) (*ExceptionWriter, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if config == nil {
		config = DefaultReportConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &ExceptionWriter{
		fs:     fs,
		config: config,
		logger: logger.GetGlobalLogger().WithComponent("exceptions"),
	}, nil
}

// ChannelRecsFile names the unmatched settlement file of channel
func ChannelRecsFile(channel string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(channel)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String() + "_recs.csv"
}

// Write creates dir and writes every exception file into it. Each channel
// gets an unmatched settlement file, empty channels included. It returns
// the paths written.
func (ew *ExceptionWriter) Write(report *aggregator.ReconciliationReport, dir string) ([]string, error) {
	if report == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "report", nil, nil)
	}
	if err := ew.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.FileError(errors.CodeDirectoryError, dir, err)
	}

	places := ew.config.DecimalPlaces
	files := []exceptionFile{
		{SummaryFile, summaryHeader(report.Channels), summaryRows(report, places)},
	}
	for _, ch := range report.Channels {
		files = append(files, exceptionFile{ChannelRecsFile(ch), settlementHeader, settlementRows(report.UnmatchedSettlement[ch], places)})
	}
	files = append(files,
		exceptionFile{LedgerRecsFile, ledgerHeader, ledgerRows(report.UnmatchedLedger, places)},
		exceptionFile{UnresolvedFile, settlementHeader, settlementRows(report.UnresolvedSettlement, places)},
		exceptionFile{MatchesFile, []string{"Ledger ID", "Settlement ID", "Tier", "Key"}, matchRows(report)},
		exceptionFile{DiagnosticsFile, []string{"Category", "Code", "Message", "Context"}, diagnosticRows(report.Diagnostics)},
	)

	written := make([]string, 0, len(files))
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		if err := ew.writeCSV(path, f.header, f.rows); err != nil {
			return written, err
		}
		written = append(written, path)
	}

	ew.logger.WithFields(logger.Fields{
		"dir":   dir,
		"files": len(written),
	}).Info("Wrote exception files")
	return written, nil
}

func (ew *ExceptionWriter) writeCSV(path string, header []string, rows [][]string) error {
	file, err := ew.fs.Create(path)
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, path, err)
	}

	cw := csv.NewWriter(file)
	cw.Comma = ew.config.delimiter()
	if err := cw.Write(header); err != nil {
		file.Close()
		return errors.FileError(errors.CodeFileCorrupted, path, err)
	}
	if err := cw.WriteAll(rows); err != nil {
		file.Close()
		return errors.FileError(errors.CodeFileCorrupted, path, err)
	}
	if err := file.Close(); err != nil {
		return errors.FileError(errors.CodeFileCorrupted, path, err)
	}
	return nil
}

func summaryRows(report *aggregator.ReconciliationReport, places int32) [][]string {
	rows := make([][]string, 0, len(report.Branches))
	for _, b := range report.Branches {
		rows = append(rows, summaryRow(b, report.Channels, places))
	}
	return rows
}

func settlementRows(records []models.SettlementRecord, places int32) [][]string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			r.ID,
			fmt.Sprint(r.Row),
			r.Channel,
			r.TerminalID,
			r.StoreName,
			r.Branch,
			r.CardNumber,
			r.CardCheck,
			formatTime(r.TransactionTime, r.RawTime),
			r.ReferenceNumber,
			formatAmount(r.PurchaseAmount, places),
			formatAmount(r.Commission, places),
			formatAmount(r.SettlementAmount, places),
		})
	}
	return rows
}

func ledgerRows(records []models.LedgerRecord, places int32) [][]string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			r.ID,
			fmt.Sprint(r.Row),
			r.StoreCode,
			r.StoreName,
			r.ZedDate,
			r.TillID,
			r.SessionID,
			r.ReceiptID,
			r.CustomerName,
			r.CardType,
			r.CardNumber,
			r.CardCheck,
			formatTime(r.TransactionTime, r.RawTime),
			r.ReferenceNumber,
			formatAmount(r.Amount, places),
		})
	}
	return rows
}

func matchRows(report *aggregator.ReconciliationReport) [][]string {
	rows := make([][]string, 0, len(report.MatchResults))
	for _, m := range report.MatchResults {
		rows = append(rows, []string{m.LedgerID, m.SettlementID, string(m.Tier), m.Key})
	}
	return rows
}

func diagnosticRows(diags []*errors.ReconcilerError) [][]string {
	rows := make([][]string, 0, len(diags))
	for _, d := range diags {
		pairs := make([]string, 0, len(d.Context))
		for _, k := range d.ContextKeys() {
			pairs = append(pairs, fmt.Sprintf("%s=%v", k, d.Context[k]))
		}
		rows = append(rows, []string{string(d.Category), string(d.Code), d.Message, strings.Join(pairs, "; ")})
	}
	return rows
}

func formatAmount(a models.Amount, places int32) string {
	if !a.Valid {
		return a.Raw
	}
	return a.Value.StringFixed(places)
}

func formatTime(t time.Time, raw string) string {
	if t.IsZero() {
		return raw
	}
	return t.Format(timeLayout)
}
