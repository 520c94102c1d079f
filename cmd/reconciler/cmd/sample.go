package cmd

import (
	"fmt"
	"strings"

	"card-reconciliation-service/internal/sampledata"

	"github.com/spf13/cobra"
)

func (a *app) newSampleCommand() *cobra.Command {
	cfg := sampledata.DefaultConfig()
	var dir string

	sampleCmd := &cobra.Command{
		Use:   "sample",
		Short: "Write a synthetic ledger, settlement exports and branch key",
		Long: `Sample writes a generated ledger export, one settlement export per channel
and a branch key to a directory, using the column layouts of the channel
schemas in effect. The same seed always gives the same files, and the
expected match counts are printed so a run over them can be checked.

Examples:
  reconciler sample --dir sample/
  reconciler sample --dir sample/ --transactions 5000 --fallback-ratio 0.3 --seed 42`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSample(cfg, dir)
		},
	}

	flags := sampleCmd.Flags()
	flags.StringVar(&dir, "dir", "sample", "directory to write the files to")
	flags.Int64Var(&cfg.Seed, "seed", cfg.Seed, "random seed")
	flags.IntVar(&cfg.Transactions, "transactions", cfg.Transactions, "number of ledger rows")
	flags.Float64Var(&cfg.FallbackRatio, "fallback-ratio", cfg.FallbackRatio, "share of ledger rows without a reference")
	flags.Float64Var(&cfg.UnmatchedRatio, "unmatched-ratio", cfg.UnmatchedRatio, "share of ledger rows no channel settled")
	flags.IntVar(&cfg.UnresolvedRows, "unresolved", cfg.UnresolvedRows, "settlement rows from stores missing in the branch key")
	flags.StringSliceVar(&cfg.Channels, "channels", cfg.Channels, "settlement channels to generate")
	flags.StringSliceVar(&cfg.Branches, "branches", cfg.Branches, "branch names")

	return sampleCmd
}

func (a *app) runSample(cfg *sampledata.Config, dir string) error {
	registry, err := a.config.Registry()
	if err != nil {
		return err
	}
	cfg.LedgerChannel = a.config.LedgerChannel

	gen, err := sampledata.NewGenerator(registry, cfg)
	if err != nil {
		return err
	}
	ds := gen.Generate()
	files, err := ds.Write(a.fs, dir)
	if err != nil {
		return err
	}

	want := ds.Expected
	fmt.Fprintf(a.stdout, "Wrote %d ledger and %d settlement rows to %s\n", want.LedgerRecords, want.SettlementRecords, dir)
	fmt.Fprintf(a.stdout, "Expected: %d reference matches, %d fallback matches, %d unmatched ledger records, %d unresolved settlement records\n",
		want.Exact, want.Fallback, want.UnmatchedLedger, want.UnresolvedSettlement)

	args := []string{"reconciler reconcile", "--ledger", files.Ledger.Path}
	if files.Ledger.Channel != "ASPIRE" {
		args = append(args, "--ledger-channel", files.Ledger.Channel)
	}
	for _, s := range files.SettlementArgs() {
		args = append(args, "--settlement", s)
	}
	args = append(args, "--branch-key", files.BranchKey)
	fmt.Fprintf(a.stdout, "\n%s\n", strings.Join(args, " "))
	return nil
}
