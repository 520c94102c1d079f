package cmd

import (
	"fmt"
	"strings"

	"card-reconciliation-service/internal/aggregator"
	"card-reconciliation-service/internal/metrics"
	"card-reconciliation-service/internal/parsers"
	"card-reconciliation-service/internal/reconciler"
	"card-reconciliation-service/internal/reporter"
	"card-reconciliation-service/pkg/errors"
	"card-reconciliation-service/pkg/logger"

	"github.com/spf13/cobra"
)

// Compile-time check that file loading satisfies the reconciler's source
var _ reconciler.BatchSource = (*parsers.FileSource)(nil)

func (a *app) newReconcileCommand() *cobra.Command {
	reconcileCmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Reconcile a ledger export with channel settlement reports",
		Long: `Reconcile matches every card sale in the ledger export against the
settlement reports of the payment channels, first by reference number and
then by branch and rounded amount, and prints the per-branch summary.

Settlement exports are given as CHANNEL=path. The channel selects the column
layout; KCB and EQUITY are built in and more can be added under 'schemas' in
the config file. The branch key maps the store names the channels report to
branch names and may be CSV (STORE_NAME,BRANCH) or YAML.

Examples:
  # Basic reconciliation
  reconciler reconcile --ledger aspire.csv \
    --settlement KCB=kcb.csv --settlement EQUITY=equity.csv --branch-key card_key.csv

  # JSON report with exception files for follow-up
  reconciler reconcile --ledger aspire.csv --settlement KCB=kcb.csv \
    --branch-key card_key.yaml --output-format json --output-file report.json \
    --exceptions-dir exceptions/

  # Reference matches only, metrics for the node exporter textfile collector
  reconciler reconcile --ledger aspire.csv --settlement KCB=kcb.csv \
    --fallback=false --metrics-file /var/lib/node_exporter/reconciler.prom`,
		RunE: a.runReconcile,
	}

	flags := reconcileCmd.Flags()
	flags.StringP("ledger", "l", "", "path to the ledger export CSV")
	flags.String("ledger-channel", "ASPIRE", "channel schema the ledger export is read with")
	flags.StringArrayP("settlement", "s", nil, "settlement export as CHANNEL=path (repeatable)")
	flags.StringP("branch-key", "k", "", "store to branch key file (CSV or YAML)")
	flags.StringSlice("channels", nil, "settlement channel columns of the report, in order")

	flags.Bool("fallback", true, "match remaining sales by branch and rounded amount")
	flags.Int32("fallback-precision", 0, "decimal places amounts are rounded to for fallback matching")

	flags.StringP("output-format", "f", "console", "output format: console, json, csv")
	flags.StringP("output-file", "o", "", "output file path (default: stdout)")
	flags.String("exceptions-dir", "", "directory to write exception CSV files to")
	flags.String("metrics-file", "", "write run metrics in Prometheus text format to this file")

	a.bind("ledger", flags.Lookup("ledger"))
	a.bind("ledger_channel", flags.Lookup("ledger-channel"))
	a.bind("settlements", flags.Lookup("settlement"))
	a.bind("branch_key_file", flags.Lookup("branch-key"))
	a.bind("channels", flags.Lookup("channels"))
	a.bind("matching.enable_fallback", flags.Lookup("fallback"))
	a.bind("matching.fallback_precision", flags.Lookup("fallback-precision"))
	a.bind("report.format", flags.Lookup("output-format"))
	a.bind("output_file", flags.Lookup("output-file"))
	a.bind("exceptions_dir", flags.Lookup("exceptions-dir"))
	a.bind("metrics_file", flags.Lookup("metrics-file"))

	return reconcileCmd
}

func (a *app) runReconcile(cmd *cobra.Command, args []string) error {
	cfg := a.config
	if err := cfg.Validate(); err != nil {
		return err
	}

	registry, err := cfg.Registry()
	if err != nil {
		return err
	}
	settlements, err := cfg.SettlementFiles()
	if err != nil {
		return err
	}

	log := logger.GetGlobalLogger().WithComponent("cli")
	if a.verbose {
		names := make([]string, 0, len(settlements))
		for _, f := range settlements {
			names = append(names, fmt.Sprintf("%s=%s", f.Channel, f.Path))
		}
		fmt.Fprintf(a.stderr, "Starting reconciliation...\n")
		fmt.Fprintf(a.stderr, "Ledger: %s (%s)\n", cfg.Ledger, cfg.LedgerChannel)
		fmt.Fprintf(a.stderr, "Settlements: %s\n", strings.Join(names, ", "))
		if cfg.BranchKeyFile != "" {
			fmt.Fprintf(a.stderr, "Branch key: %s\n", cfg.BranchKeyFile)
		}
		fmt.Fprintf(a.stderr, "Output format: %s\n", cfg.Report.Format)
	}

	parser := parsers.NewBaseParser(a.fs, &cfg.Parsing)
	source := parsers.NewFileSource(parser, cfg.LedgerFile(), settlements, cfg.BranchKeyFile)

	recorder := metrics.NewRecorder()
	service, err := reconciler.NewService(registry, cfg.ReconcilerConfig(), reconciler.WithMetrics(recorder))
	if err != nil {
		return err
	}

	report, runErr := service.Reconcile(cmd.Context(), source)
	if cfg.MetricsFile != "" {
		if err := recorder.WriteTextfile(cfg.MetricsFile); err != nil {
			log.WithError(err).WithField("file", cfg.MetricsFile).Warn("Failed to write metrics file")
		}
	}
	if runErr != nil {
		return runErr
	}

	output, err := reporter.NewOutput(a.fs, &cfg.Report, a.stdout)
	if err != nil {
		return err
	}
	if err := output.Write(report, cfg.OutputFile); err != nil {
		return err
	}

	if cfg.ExceptionsDir != "" {
		writer, err := reporter.NewExceptionWriter(a.fs, &cfg.Report)
		if err != nil {
			return err
		}
		if _, err := writer.Write(report, cfg.ExceptionsDir); err != nil {
			return err
		}
	}

	if a.verbose {
		a.printCompletion(report)
	}
	return nil
}

func (a *app) printCompletion(report *aggregator.ReconciliationReport) {
	s := report.MatchSummary
	total := report.Total()
	fmt.Fprintf(a.stderr, "\nReconciliation %s completed successfully.\n", report.RunID)
	fmt.Fprintf(a.stderr, "Processed %d ledger records and %d settlement records across %d branches.\n",
		s.LedgerRecords, s.SettlementRecords, report.Stats.Branches)
	fmt.Fprintf(a.stderr, "Found %d reference matches, %d fallback matches, %d unmatched ledger records.\n",
		s.Exact, s.Fallback, s.Unmatched)
	if report.Stats.UnresolvedSettlement > 0 {
		fmt.Fprintf(a.stderr, "%d settlement records have no branch mapping.\n", report.Stats.UnresolvedSettlement)
	}
	fmt.Fprintf(a.stderr, "Net variance: %s\n", total.NetVariance.StringFixed(2))
	if n := len(report.Diagnostics); n > 0 {
		counts := report.DiagnosticsByCode()
		fmt.Fprintf(a.stderr, "Diagnostics: %d (%d value coercions)\n", n, counts[errors.CodeValueCoercion])
	}
}
