package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"card-reconciliation-service/cmd/reconciler/config"
	"card-reconciliation-service/pkg/errors"
	"card-reconciliation-service/pkg/logger"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// app carries the state shared by the commands of one invocation
type app struct {
	v      *viper.Viper
	fs     afero.Fs
	stdout io.Writer
	stderr io.Writer

	cfgFile string
	verbose bool
	config  *config.AppConfig
}

// NewRootCommand builds the command tree over fs, writing reports to
// stdout and messages to stderr
func NewRootCommand(fs afero.Fs, stdout, stderr io.Writer) *cobra.Command {
	a := &app{
		v:      config.NewViper(),
		fs:     fs,
		stdout: stdout,
		stderr: stderr,
	}
	a.v.SetFs(fs)

	rootCmd := &cobra.Command{
		Use:   "reconciler",
		Short: "Card payment reconciliation tool",
		Long: `Reconciler matches the card sales in a retailer's point-of-sale ledger
against the settlement reports of the acquiring banks, and summarises
what was paid, what is missing and what is unexplained for every branch.

Examples:
  reconciler reconcile --ledger aspire.csv --settlement KCB=kcb.csv --settlement EQUITY=equity.csv --branch-key card_key.csv
  reconciler reconcile --config reconcile.yaml --output-format json --output-file report.json
  reconciler schemas
  reconciler sample --dir sample/`,
		Version:           versionString(),
		SilenceErrors:     true,
		SilenceUsage:      true,
		PersistentPreRunE: a.initConfig,
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	rootCmd.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (optional)")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("log-level", string(logger.InfoLevel), "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", string(logger.TextFormat), "log format: text, json")

	a.bind("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	a.bind("log.format", rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.AddCommand(a.newReconcileCommand(), a.newSchemasCommand(), a.newSampleCommand())
	return rootCmd
}

// Execute runs the CLI and returns the process exit code
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCommand(afero.NewOsFs(), os.Stdout, os.Stderr)
	return run(ctx, root, os.Args[1:], os.Stderr)
}

func run(ctx context.Context, root *cobra.Command, args []string, stderr io.Writer) int {
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)

	verbose, _ := root.PersistentFlags().GetBool("verbose")
	return NewCLIErrorHandler(stderr, verbose).HandleError(err)
}

// bind makes flag the highest-priority source of key
func (a *app) bind(key string, flag *pflag.Flag) {
	if err := a.v.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("binding flag for %s: %v", key, err))
	}
}

// initConfig reads the config file, then environment and flags, and sets
// up logging
func (a *app) initConfig(cmd *cobra.Command, args []string) error {
	if a.cfgFile != "" {
		if err := config.ReadFile(a.v, a.cfgFile); err != nil {
			return err
		}
	}

	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	log, err := logger.NewLogger(&cfg.Log)
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "log", cfg.Log, err).
			WithSuggestion("log level is one of debug, info, warn, error and format one of text, json")
	}
	logger.SetGlobalLogger(log)

	if a.verbose && a.v.ConfigFileUsed() != "" {
		fmt.Fprintf(a.stderr, "Using config file: %s\n", a.v.ConfigFileUsed())
	}

	a.config = cfg
	return nil
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
}

func versionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}
